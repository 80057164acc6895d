package fsops

import "errors"

var (
	// ErrWalkTooDeep is returned by Walk when nesting exceeds the maximum
	// depth, which usually means a directory cycle.
	ErrWalkTooDeep = errors.New("directory nesting too deep")

	ErrUnexpectedData = errors.New("unexpected completion data")
	ErrInvalidSize    = errors.New("invalid size")
)
