package backend

import "errors"

var (
	// ErrClosed is returned by Submit after Stop, and is the last error of
	// every request that was still queued when the backend stopped.
	ErrClosed = errors.New("backend is closed")

	ErrQueueFull        = errors.New("backend queue is full")
	ErrUnknownOp        = errors.New("unknown operation")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrInvalidPriority  = errors.New("priority out of range")
	ErrNilCallback      = errors.New("nil completion callback")

	// ErrPanic is the last error of a request whose execution panicked.
	ErrPanic = errors.New("operation panicked")
)
