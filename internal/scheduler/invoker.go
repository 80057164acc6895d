package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/desertwitch/evfs/internal/backend"
	"github.com/desertwitch/evfs/internal/future"
	"github.com/desertwitch/evfs/internal/waitq"
	eventloop "github.com/joeycumines/go-eventloop"
)

type dispatcher interface {
	Dispatch(ctx context.Context, op backend.Op, sentinel int64, args ...any) *future.Future[Completion]
	Promises() *eventloop.JS
}

type call struct {
	ctx         context.Context //nolint:containedctx
	op          backend.Op
	args        []any
	passthrough bool
	result      *future.Future[Completion]
}

// Invoker limits the number of operations in flight. Calls beyond the
// ceiling wait in arrival order and are released one per completion.
type Invoker struct {
	dispatcher dispatcher
	ceiling    int
	waiting    *waitq.Queue[*call]

	inflight    atomic.Int64
	passthrough atomic.Int64
}

// NewInvoker returns an [Invoker] with the given ceiling. A ceiling <= 0
// disables the limit.
func NewInvoker(d dispatcher, ceiling int) *Invoker {
	return &Invoker{
		dispatcher: d,
		ceiling:    ceiling,
		waiting:    waitq.New[*call](),
	}
}

// InvokeCall dispatches op now if the ceiling allows it, or queues it
// otherwise. Passthrough calls are never queued and do not count against
// the ceiling.
func (inv *Invoker) InvokeCall(ctx context.Context, op backend.Op, args []any, passthrough bool) *future.Future[Completion] {
	c := &call{
		ctx:         ctx,
		op:          op,
		args:        args,
		passthrough: passthrough,
		result:      future.New[Completion](inv.dispatcher.Promises()),
	}

	if passthrough {
		inv.waiting.Bypass()
		inv.passthrough.Add(1)
		inv.start(c)

		return c.result
	}

	if !inv.atCeiling() && !inv.waiting.HasRemainingItems() {
		inv.waiting.Bypass()
		inv.inflight.Add(1)
		inv.start(c)

		return c.result
	}

	inv.waiting.Enqueue(c)
	slog.Debug("Queued operation at in-flight ceiling",
		"op", op.String(),
		"ceiling", inv.ceiling,
		"waiting", inv.waiting.Len(),
	)

	return c.result
}

func (inv *Invoker) atCeiling() bool {
	return inv.ceiling > 0 && inv.inflight.Load() >= int64(inv.ceiling)
}

func (inv *Invoker) start(c *call) {
	inner := inv.dispatcher.Dispatch(c.ctx, c.op, backend.ErrorSentinel, c.args...)

	inner.Finally(func(_ Completion, err error) {
		if err != nil {
			inv.waiting.SetFailed()
		} else {
			inv.waiting.SetSuccess()
		}

		if c.passthrough {
			inv.passthrough.Add(-1)
		} else {
			if inv.inflight.Add(-1) < 0 {
				invariantViolated("negative in-flight count", "op", c.op.String())
				inv.inflight.Store(0)
			}
			inv.release()
		}
	})

	future.Forward(inner, c.result)
}

func (inv *Invoker) release() {
	for !inv.atCeiling() {
		next, ok := inv.waiting.Dequeue()
		if !ok {
			return
		}

		inv.inflight.Add(1)
		inv.start(next)
	}
}

// Promises returns the promise adapter that settles the invoker's futures.
func (inv *Invoker) Promises() *eventloop.JS {
	return inv.dispatcher.Promises()
}

// InFlight returns the number of dispatched calls that count against the
// ceiling.
func (inv *Invoker) InFlight() int {
	return int(inv.inflight.Load())
}

// Waiting returns the number of queued calls.
func (inv *Invoker) Waiting() int {
	return inv.waiting.Len()
}

// Progress returns the accounting of every call made through the invoker.
// It is safe to call from any goroutine.
func (inv *Invoker) Progress() waitq.Progress {
	return inv.waiting.Progress()
}
