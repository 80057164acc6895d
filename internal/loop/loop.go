// Package loop adapts a [eventloop.Loop] to the small reactor surface the
// scheduler needs.
//
// The event loop runs on its own goroutine from [New] until [Loop.Close].
// Readiness callbacks, deferred tasks and promise observers all run on that
// goroutine. Tasks deferred while a task runs are picked up on a later tick,
// never within the caller's stack frame.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	eventloop "github.com/joeycumines/go-eventloop"
)

type Loop struct {
	el *eventloop.Loop
	js *eventloop.JS

	mu      sync.Mutex
	pending int
	watches map[int]struct{}
	idle    chan struct{}
	quiet   bool
	closed  bool

	tasks   atomic.Uint64
	stopped chan struct{}
}

func New() (*Loop, error) {
	el, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("(loop) failed to create event loop: %w", err)
	}

	js, err := eventloop.NewJS(el, eventloop.WithUnhandledRejection(func(reason any) {
		slog.Debug("Rejection without observer", "reason", reason)
	}))
	if err != nil {
		_ = el.Close()

		return nil, fmt.Errorf("(loop) failed to attach promises: %w", err)
	}

	idle := make(chan struct{})
	close(idle)

	l := &Loop{
		el:      el,
		js:      js,
		watches: make(map[int]struct{}),
		idle:    idle,
		quiet:   true,
		stopped: make(chan struct{}),
	}

	go l.run()

	return l, nil
}

func (l *Loop) run() {
	defer close(l.stopped)

	if err := l.el.Run(context.Background()); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		slog.Error("Event loop stopped", "err", err)
	}
}

// Promises returns the promise adapter bound to the loop. Observers of its
// promises run on the loop goroutine.
func (l *Loop) Promises() *eventloop.JS {
	return l.js
}

// AddReadinessWatch makes the loop call cb whenever fd becomes readable.
func (l *Loop) AddReadinessWatch(fd int, cb func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()

		return ErrClosed
	}
	if _, exists := l.watches[fd]; exists {
		l.mu.Unlock()

		return fmt.Errorf("(loop) fd %d: %w", fd, ErrAlreadyWatched)
	}
	l.watches[fd] = struct{}{}
	l.busyLocked()
	l.mu.Unlock()

	if err := l.el.RegisterFD(fd, eventloop.EventRead, func(eventloop.IOEvents) { cb() }); err != nil {
		l.mu.Lock()
		delete(l.watches, fd)
		l.mu.Unlock()
		l.maybeIdle()

		return fmt.Errorf("(loop) failed to watch fd %d: %w", fd, err)
	}

	return nil
}

// RemoveReadinessWatch stops watching fd.
func (l *Loop) RemoveReadinessWatch(fd int) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()

		return ErrClosed
	}
	if _, exists := l.watches[fd]; !exists {
		l.mu.Unlock()

		return fmt.Errorf("(loop) fd %d: %w", fd, ErrNotWatched)
	}
	delete(l.watches, fd)
	l.mu.Unlock()

	err := l.el.UnregisterFD(fd)
	l.maybeIdle()

	if err != nil {
		return fmt.Errorf("(loop) failed to unwatch fd %d: %w", fd, err)
	}

	return nil
}

// Defer schedules fn for a later loop tick. It is safe to call from any
// goroutine. Tasks deferred after [Loop.Close] are dropped.
func (l *Loop) Defer(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		slog.Debug("Dropped task deferred to a closed loop")

		return
	}
	l.pending++
	l.busyLocked()
	l.mu.Unlock()

	err := l.el.Submit(func() {
		defer l.taskDone()
		l.tasks.Add(1)
		fn()
	})
	if err != nil {
		slog.Debug("Dropped task refused by the event loop", "err", err)
		l.taskDone()
	}
}

func (l *Loop) taskDone() {
	l.mu.Lock()
	l.pending--
	l.mu.Unlock()

	l.maybeIdle()
}

// maybeIdle queues an idle check behind the microtasks of the current tick,
// so observers that defer more work are seen before the loop is declared
// idle.
func (l *Loop) maybeIdle() {
	l.mu.Lock()
	check := l.pending == 0 && len(l.watches) == 0 && !l.quiet
	l.mu.Unlock()

	if !check {
		return
	}

	if err := l.el.Submit(l.settle); err != nil {
		l.settle()
	}
}

func (l *Loop) settle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending == 0 && len(l.watches) == 0 && !l.quiet {
		close(l.idle)
		l.quiet = true
	}
}

func (l *Loop) busyLocked() {
	if l.quiet {
		l.idle = make(chan struct{})
		l.quiet = false
	}
}

// Watching returns the number of active readiness watches.
func (l *Loop) Watching() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.watches)
}

// Tasks returns the number of deferred tasks that have run.
func (l *Loop) Tasks() uint64 {
	return l.tasks.Load()
}

// Run blocks until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("(loop) %w", ctx.Err())
	case <-l.stopped:
		return ErrClosed
	}
}

// RunUntilIdle blocks until there are neither deferred tasks nor readiness
// watches left, or until ctx is done.
func (l *Loop) RunUntilIdle(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("(loop) %w", ctx.Err())
	case <-l.stopped:
		return ErrClosed
	}
}

// Close stops the event loop and waits for its goroutine to return. Pending
// tasks are discarded.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()

		return nil
	}
	l.closed = true
	l.watches = make(map[int]struct{})
	l.mu.Unlock()

	err := l.el.Close()
	<-l.stopped

	if err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		return fmt.Errorf("(loop) failed to close event loop: %w", err)
	}

	return nil
}
