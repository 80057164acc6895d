package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

const (
	sinkTerminal = "terminal"
	sinkUI       = "ui"
)

// logRouter is a [slog.Handler] that fans records out to a set of named
// sinks. Sinks can be swapped at runtime, which moves the logs between the
// terminal and the dashboard without rebuilding any loggers.
type logRouter struct {
	mu       sync.RWMutex
	sinks    map[string]slog.Handler
	level    slog.Leveler
	terminal slog.Handler
}

// routed is a derived handler carrying attrs and groups. It resolves the
// sinks of its router on every record.
type routed struct {
	router *logRouter
	steps  []func(slog.Handler) slog.Handler
}

// newLogRouter returns a router with terminal installed as its only sink.
func newLogRouter(level slog.Leveler, terminal slog.Handler) *logRouter {
	return &logRouter{
		sinks:    map[string]slog.Handler{sinkTerminal: terminal},
		level:    level,
		terminal: terminal,
	}
}

func newTintHandler(w io.Writer, level slog.Leveler, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})
}

func (r *logRouter) Route(name string, h slog.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[name] = h
}

func (r *logRouter) Unroute(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, name)
}

func (r *logRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *logRouter) Handle(ctx context.Context, rec slog.Record) error {
	return r.dispatch(ctx, rec, nil)
}

func (r *logRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return (&routed{router: r}).WithAttrs(attrs)
}

func (r *logRouter) WithGroup(name string) slog.Handler {
	return (&routed{router: r}).WithGroup(name)
}

func (r *logRouter) dispatch(ctx context.Context, rec slog.Record, steps []func(slog.Handler) slog.Handler) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error

	for _, h := range r.sinks {
		for _, step := range steps {
			h = step(h)
		}
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (d *routed) Enabled(ctx context.Context, level slog.Level) bool {
	return d.router.Enabled(ctx, level)
}

func (d *routed) Handle(ctx context.Context, rec slog.Record) error {
	return d.router.dispatch(ctx, rec, d.steps)
}

func (d *routed) WithAttrs(attrs []slog.Attr) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (d *routed) WithGroup(name string) slog.Handler {
	if name == "" {
		return d
	}

	return d.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (d *routed) with(step func(slog.Handler) slog.Handler) *routed {
	steps := make([]func(slog.Handler) slog.Handler, len(d.steps), len(d.steps)+1)
	copy(steps, d.steps)

	return &routed{router: d.router, steps: append(steps, step)}
}
