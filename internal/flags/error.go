package flags

import "errors"

var (
	// ErrUnknownToken is returned when a mode string contains a token that
	// has no flag or permission mapping.
	ErrUnknownToken = errors.New("unknown mode token")

	// ErrEmptyMode is returned when a mode string contains no tokens at all.
	ErrEmptyMode = errors.New("empty mode string")

	// ErrPermissionRange is returned when an octal permission exceeds 07777.
	ErrPermissionRange = errors.New("permission out of range")
)
