package loop

import "errors"

var (
	ErrAlreadyWatched = errors.New("descriptor is already watched")
	ErrNotWatched     = errors.New("descriptor is not watched")
	ErrClosed         = errors.New("loop is closed")
)
