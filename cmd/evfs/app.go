package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/configuration"
	"github.com/desertwitch/evfs/internal/fsops"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/desertwitch/evfs/internal/listing"
	"github.com/desertwitch/evfs/internal/loop"
	"github.com/desertwitch/evfs/internal/scheduler"
	"github.com/desertwitch/evfs/internal/telemetry"
	"github.com/desertwitch/evfs/internal/ui"
	"github.com/desertwitch/evfs/internal/waitq"
)

const (
	tracerName      = "github.com/desertwitch/evfs"
	teardownTimeout = 5 * time.Second
	uiPollInterval  = 10 * time.Millisecond
)

// job dispatches the operations of one command and returns a report that
// prints their settled results.
type job func(ctx context.Context, ops *fsops.Handler) report

type report func(w io.Writer) error

// App holds one event loop and everything dispatching on it.
type App struct {
	cfg  *configuration.Config
	logs *logRouter

	loop      *loop.Loop
	backend   *backend.Handler
	scheduler *scheduler.Handler
	invoker   *scheduler.Invoker
	ops       *fsops.Handler
	telemetry *telemetry.Provider

	uiEnabled bool
	teardown  *waitq.TaskManager
}

// NewApp builds the stack. On error everything created so far is released.
func NewApp(ctx context.Context, cfg *configuration.Config, logs *logRouter, uiEnabled bool) (*App, error) {
	app := &App{
		cfg:       cfg,
		logs:      logs,
		uiEnabled: uiEnabled,
		teardown:  waitq.NewTaskManager(),
	}

	var err error

	app.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceVersion: Version,
	})
	if err != nil {
		return nil, fmt.Errorf("(app) %w", err)
	}

	app.loop, err = loop.New()
	if err != nil {
		_ = app.telemetry.Shutdown(ctx)

		return nil, fmt.Errorf("(app) %w", err)
	}

	app.backend, err = backend.NewHandler(backend.Config{
		Workers:    cfg.Workers,
		MaxPending: cfg.MaxPending,
	}, &backend.OS{}, &backend.Unix{})
	if err != nil {
		_ = app.loop.Close()
		_ = app.telemetry.Shutdown(ctx)

		return nil, fmt.Errorf("(app) %w", err)
	}

	// The backend is stopped before the loop that polls it goes away.
	app.teardown.Add("backend", func(context.Context) error { return app.backend.Close() })
	app.teardown.Add("loop", func(context.Context) error { return app.loop.Close() })
	app.teardown.Add("telemetry", app.telemetry.Shutdown)

	app.scheduler, err = scheduler.NewHandler(app.loop, app.backend, scheduler.Options{
		Priority: cfg.Priority,
		MaxPoll:  cfg.MaxPollRequests,
		Tracer:   app.telemetry.Tracer(tracerName),
	})
	if err != nil {
		_ = app.Close()

		return nil, fmt.Errorf("(app) %w", err)
	}

	app.invoker = scheduler.NewInvoker(app.scheduler, cfg.MaxInflight)
	app.ops = fsops.NewHandler(app.invoker, listing.NewResolver(app.invoker, cfg.Policy()))

	slog.Debug("Scheduler ready",
		"workers", cfg.Workers,
		"maxPending", cfg.MaxPending,
		"maxInflight", cfg.MaxInflight,
		"listingPolicy", cfg.ListingPolicy,
		"tracing", app.telemetry.Enabled(),
	)

	return app, nil
}

// Snapshot samples the counters of every layer for the dashboard.
func (app *App) Snapshot() ui.Snapshot {
	return ui.Snapshot{
		Operations: app.invoker.Progress(),
		Scheduler:  app.scheduler.Stats(),
		Backend:    app.backend.Stats(),
	}
}

// Run dispatches j, drives the loop until every operation settled and
// writes the report to w. With the dashboard enabled the report is written
// after the dashboard exits.
func (app *App) Run(ctx context.Context, j job, w io.Writer) error {
	if !app.uiEnabled {
		return app.execute(ctx, j, w)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	uiHandler := ui.NewHandler(ctx, cancel, app)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := uiHandler.Launch(); err != nil {
			slog.Error("UI failure: falling back to terminal.", "err", err)
		}
	}()

	if !app.waitForUI(ctx, uiHandler) {
		wg.Wait()

		return app.execute(ctx, j, w)
	}

	app.logs.Route(sinkUI, newTintHandler(uiHandler.LogWriter, app.logs.level, false))
	app.logs.Unroute(sinkTerminal)

	rep, err := app.dispatch(ctx, j)

	uiHandler.Finish()
	wg.Wait()

	app.logs.Route(sinkTerminal, app.logs.terminal)
	app.logs.Unroute(sinkUI)

	if err != nil {
		return err
	}

	return rep(w)
}

func (app *App) waitForUI(ctx context.Context, uiHandler *ui.Handler) bool {
	slog.Info("Waiting for UI...")

	for {
		switch {
		case uiHandler.Ready.Load():
			return true
		case uiHandler.Failed.Load():
			return false
		case ctx.Err() != nil:
			return false
		}
		time.Sleep(uiPollInterval)
	}
}

func (app *App) execute(ctx context.Context, j job, w io.Writer) error {
	rep, err := app.dispatch(ctx, j)
	if err != nil {
		return err
	}

	return rep(w)
}

// dispatch starts the job on the loop goroutine, which owns the scheduler,
// and waits until every operation it started has settled.
func (app *App) dispatch(ctx context.Context, j job) (report, error) {
	var rep report
	app.loop.Defer(func() {
		rep = j(ctx, app.ops)
	})

	if err := app.loop.RunUntilIdle(ctx); err != nil {
		return nil, fmt.Errorf("(app) loop: %w", err)
	}

	stats := app.scheduler.Stats()
	slog.Debug("All operations settled",
		"submitted", stats.Submitted,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"refused", stats.Refused,
		"registrations", stats.Registrations,
	)

	return rep, nil
}

// Close runs the teardown tasks. It uses its own deadline so a cancelled
// command still releases its descriptors and flushes its spans.
func (app *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := app.teardown.Launch(ctx); err != nil {
		return fmt.Errorf("(app) teardown: %w", err)
	}

	return nil
}

// settled reads a future that the loop has already driven to completion.
func settled[T any](f *future.Future[T]) (T, error) {
	v, err, ok := f.Result()
	if !ok {
		var zero T

		return zero, ErrNotSettled
	}

	return v, err
}
