// Package future provides a typed single-assignment deferred result on top
// of [eventloop.Promise].
//
// A [Future] transitions at most once, from pending to either resolved with a
// value or rejected with an error. Observers attached with [Future.Then] or
// [Future.Finally] run as microtasks on the event loop that owns the
// promise, never within the stack frame that settles the future. Every
// observer sees the same terminal outcome.
package future

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	eventloop "github.com/joeycumines/go-eventloop"
)

var (
	// ErrNilError is used to reject a future when Reject is called with nil.
	ErrNilError = errors.New("rejected with nil error")

	// ErrNotAnError wraps a rejection reason that is not an error.
	ErrNotAnError = errors.New("rejected with non-error reason")
)

type Future[T any] struct {
	js      *eventloop.JS
	p       *eventloop.Promise
	resolve eventloop.ResolveFunc
	reject  eventloop.RejectFunc
	claimed atomic.Bool
}

// New returns a pending future whose observers run on the loop behind js.
func New[T any](js *eventloop.JS) *Future[T] {
	p, resolve, reject := js.NewPromise()

	return &Future[T]{
		js:      js,
		p:       p,
		resolve: resolve,
		reject:  reject,
	}
}

// derived futures are settled by their source promise only.
func derived[T any](js *eventloop.JS, p *eventloop.Promise) *Future[T] {
	f := &Future[T]{js: js, p: p}
	f.claimed.Store(true)

	return f
}

// Resolved returns an already resolved future.
func Resolved[T any](js *eventloop.JS, value T) *Future[T] {
	f := New[T](js)
	f.Resolve(value)

	return f
}

// Rejected returns an already rejected future.
func Rejected[T any](js *eventloop.JS, err error) *Future[T] {
	f := New[T](js)
	f.Reject(err)

	return f
}

// Resolve settles the future with value. It returns false if the future had
// already settled, in which case nothing changes.
func (f *Future[T]) Resolve(value T) bool {
	if !f.claimed.CompareAndSwap(false, true) {
		return false
	}
	f.resolve(value)

	return true
}

// Reject settles the future with err. It returns false if the future had
// already settled, in which case nothing changes.
func (f *Future[T]) Reject(err error) bool {
	if !f.claimed.CompareAndSwap(false, true) {
		return false
	}
	if err == nil {
		err = ErrNilError
	}
	f.reject(err)

	return true
}

// Promise returns the promise backing f.
func (f *Future[T]) Promise() *eventloop.Promise {
	return f.p
}

// Finally registers fn to receive the terminal outcome.
func (f *Future[T]) Finally(fn func(T, error)) {
	f.p.Then(
		func(v any) any {
			fn(valueOf[T](v), nil)

			return nil
		},
		func(reason any) any {
			var zero T
			fn(zero, errorOf(reason))

			return nil
		},
	)
}

// Then registers separate observers for resolution and rejection. Either may
// be nil.
func (f *Future[T]) Then(onResolve func(T), onReject func(error)) {
	f.Finally(func(value T, err error) {
		if err != nil {
			if onReject != nil {
				onReject(err)
			}

			return
		}
		if onResolve != nil {
			onResolve(value)
		}
	})
}

// Result returns the outcome and whether the future has settled.
func (f *Future[T]) Result() (T, error, bool) { //nolint:revive,stylecheck
	var zero T

	switch f.p.State() {
	case eventloop.Fulfilled:
		return valueOf[T](f.p.Value()), nil, true
	case eventloop.Rejected:
		return zero, errorOf(f.p.Reason()), true
	case eventloop.Pending:
	}

	return zero, nil, false
}

// Wait blocks until the future settles or ctx is done. It must not be called
// from the loop goroutine.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T

		return zero, fmt.Errorf("(future) %w", ctx.Err())
	case <-f.p.ToChannel():
	}

	value, err, _ := f.Result()

	return value, err
}

// Forward settles dst with the outcome of src once src settles.
func Forward[T any](src, dst *Future[T]) {
	src.Finally(func(value T, err error) {
		if err != nil {
			dst.Reject(err)

			return
		}
		dst.Resolve(value)
	})
}

// Map returns a future resolving with fn applied to the value of f. A
// rejection of f, or an error returned by fn, rejects the returned future.
func Map[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	return derived[U](f.js, f.p.Then(func(v any) any {
		mapped, err := fn(valueOf[T](v))
		if err != nil {
			return f.js.Reject(err)
		}

		return mapped
	}, nil))
}

// FlatMap is like [Map] but fn returns a future whose outcome is adopted.
func FlatMap[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	return derived[U](f.js, f.p.Then(func(v any) any {
		return fn(valueOf[T](v)).p
	}, nil))
}

func valueOf[T any](v any) T {
	value, _ := v.(T)

	return value
}

func errorOf(reason any) error {
	switch r := reason.(type) {
	case nil:
		return ErrNilError
	case error:
		return r
	default:
		return fmt.Errorf("%w: %v", ErrNotAnError, r)
	}
}
