// Package scheduler connects a [backend.Handler] to a [loop.Loop].
//
// The [Handler] dispatches operations to the backend on a later loop tick and
// watches the backend's completion signal only while work is outstanding.
// Completions are drained on the loop goroutine and settle the
// [future.Future] returned by [Handler.Dispatch]. The [Invoker] puts a ceiling
// on the number of requests in flight.
//
// Apart from [Handler.Stats], [Invoker.Progress] and the Promises accessors,
// every method must be called from the goroutine running the loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/google/uuid"
	eventloop "github.com/joeycumines/go-eventloop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/desertwitch/evfs/internal/scheduler"

type loopProvider interface {
	AddReadinessWatch(fd int, cb func()) error
	RemoveReadinessWatch(fd int) error
	Defer(fn func())
	Promises() *eventloop.JS
}

type backendProvider interface {
	Submit(op backend.Op, args []any, priority int, cb backend.Callback) (*backend.Request, error)
	Poll(maxReqs int) int
	SignalFd() int
	LastError(req *backend.Request) error
}

// Completion is the outcome of an operation that did not fail.
type Completion struct {
	ID     uuid.UUID
	Result int64
	Data   any
}

type Options struct {
	// Priority is passed to the backend with every submission.
	Priority int

	// MaxPoll bounds the completions delivered per backend poll. A drain
	// pass polls repeatedly until nothing is ready, so this only sizes the
	// batches. Zero means no bound.
	MaxPoll int

	// Tracer records one span per dispatched operation. Nil uses the global
	// tracer provider.
	Tracer trace.Tracer
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	Submitted     int64
	Completed     int64
	Failed        int64
	Refused       int64
	Outstanding   int64
	Registrations int64
	Active        bool
}

type Handler struct {
	loop     loopProvider
	backend  backendProvider
	priority int
	maxPoll  int
	tracer   trace.Tracer

	pendingSubmits int

	active        atomic.Bool
	outstanding   atomic.Int64
	submitted     atomic.Int64
	completed     atomic.Int64
	failed        atomic.Int64
	refused       atomic.Int64
	registrations atomic.Int64
}

func NewHandler(l loopProvider, b backendProvider, opts Options) (*Handler, error) {
	if opts.Priority < backend.MinPriority || opts.Priority > backend.MaxPriority {
		return nil, fmt.Errorf("(scheduler) %w: %d", ErrInvalidPriority, opts.Priority)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Handler{
		loop:     l,
		backend:  b,
		priority: opts.Priority,
		maxPoll:  max(opts.MaxPoll, 0),
		tracer:   tracer,
	}, nil
}

// Register starts watching the completion signal. It does nothing if the
// signal is already watched.
func (h *Handler) Register() error {
	if h.active.Load() {
		return nil
	}

	if err := h.loop.AddReadinessWatch(h.backend.SignalFd(), h.onReadiness); err != nil {
		return fmt.Errorf("(scheduler) failed to watch completion signal: %w", err)
	}

	h.active.Store(true)
	h.registrations.Add(1)
	slog.Debug("Watching completion signal", "outstanding", h.outstanding.Load())

	return nil
}

// Unregister stops watching the completion signal. It does nothing if the
// signal is not watched.
func (h *Handler) Unregister() error {
	if !h.active.Load() {
		return nil
	}

	if err := h.loop.RemoveReadinessWatch(h.backend.SignalFd()); err != nil {
		return fmt.Errorf("(scheduler) failed to unwatch completion signal: %w", err)
	}

	h.active.Store(false)
	slog.Debug("Stopped watching completion signal")

	return nil
}

// Promises returns the promise adapter of the loop the handler runs on.
func (h *Handler) Promises() *eventloop.JS {
	return h.loop.Promises()
}

// Active reports whether the completion signal is watched.
func (h *Handler) Active() bool {
	return h.active.Load()
}

// Outstanding returns the number of accepted requests not yet delivered.
func (h *Handler) Outstanding() int64 {
	return h.outstanding.Load()
}

// Dispatch submits op to the backend on the next loop iteration and returns
// its deferred result. A result equal to sentinel rejects the future with an
// [*OperationError], a refused submission rejects it with a
// [*SubmissionError]. The future never settles within this call.
//
// ctx only parents the operation's span. A dispatched operation cannot be
// canceled.
func (h *Handler) Dispatch(ctx context.Context, op backend.Op, sentinel int64, args ...any) *future.Future[Completion] {
	f := future.New[Completion](h.loop.Promises())

	_, span := h.tracer.Start(ctx, "evfs."+op.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("evfs.op", op.String()),
			attribute.String("evfs.args", FormatArgs(args)),
		),
	)

	if err := h.Register(); err != nil {
		h.loop.Defer(func() {
			h.refuse(f, span, op, err)
		})

		return f
	}

	h.pendingSubmits++
	h.loop.Defer(func() {
		h.pendingSubmits--
		h.submit(f, span, op, sentinel, args)
	})

	return f
}

func (h *Handler) submit(f *future.Future[Completion], span trace.Span, op backend.Op, sentinel int64, args []any) {
	req, err := h.backend.Submit(op, args, h.priority, func(data any, result int64, req *backend.Request) {
		h.complete(f, span, op, sentinel, args, data, result, req)
	})
	if err != nil {
		h.refuse(f, span, op, err)
		h.unregisterIfIdle()

		return
	}

	h.outstanding.Add(1)
	h.submitted.Add(1)
	span.SetAttributes(attribute.String("evfs.request_id", req.ID.String()))

	slog.Debug("Submitted operation",
		"op", op.String(),
		"id", req.ID.String(),
		"outstanding", h.outstanding.Load(),
	)
}

func (h *Handler) refuse(f *future.Future[Completion], span trace.Span, op backend.Op, err error) {
	h.refused.Add(1)

	serr := &SubmissionError{Op: op, Err: err}
	span.RecordError(serr)
	span.SetStatus(codes.Error, "submission failed")
	span.End()

	slog.Warn("Backend refused operation",
		"op", op.String(),
		"err", err,
	)

	f.Reject(serr)
}

func (h *Handler) complete(f *future.Future[Completion], span trace.Span, op backend.Op, sentinel int64, args []any, data any, result int64, req *backend.Request) {
	if h.outstanding.Add(-1) < 0 {
		invariantViolated("negative outstanding work", "op", op.String(), "id", req.ID.String())
		h.outstanding.Store(0)
	}
	h.completed.Add(1)

	span.SetAttributes(attribute.Int64("evfs.result", result))

	if result == sentinel {
		cause := h.backend.LastError(req)
		if cause == nil {
			cause = ErrNoBackendError
		}

		h.failed.Add(1)
		err := &OperationError{Op: op, Args: args, Err: cause}
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
		span.End()

		f.Reject(err)

		return
	}

	span.End()

	f.Resolve(Completion{
		ID:     req.ID,
		Result: result,
		Data:   data,
	})
}

func (h *Handler) onReadiness() {
	// Nothing to poll. The watch is only dropped when no submission is
	// waiting for it either, otherwise an idle watch would keep the loop busy.
	if h.outstanding.Load() == 0 {
		h.unregisterIfIdle()

		return
	}

	drained := 0
	for {
		n := h.backend.Poll(h.maxPoll)
		if n == 0 {
			break
		}
		drained += n
	}

	slog.Debug("Drained completions",
		"drained", drained,
		"outstanding", h.outstanding.Load(),
	)

	h.unregisterIfIdle()
}

// unregisterIfIdle keeps the signal watched while a dispatch is still
// waiting for its deferred submission.
func (h *Handler) unregisterIfIdle() {
	if h.outstanding.Load() != 0 || h.pendingSubmits != 0 {
		return
	}

	if err := h.Unregister(); err != nil {
		slog.Warn("Failed to unwatch completion signal", "err", err)
	}
}

// Stats returns a snapshot of the counters. It is safe to call from any
// goroutine.
func (h *Handler) Stats() Stats {
	return Stats{
		Submitted:     h.submitted.Load(),
		Completed:     h.completed.Load(),
		Failed:        h.failed.Load(),
		Refused:       h.refused.Load(),
		Outstanding:   h.outstanding.Load(),
		Registrations: h.registrations.Load(),
		Active:        h.active.Load(),
	}
}
