package configuration

import "errors"

var (
	// ErrInvalidConfig is matched by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrUnsupportedFormat = errors.New("unsupported configuration file format")
)
