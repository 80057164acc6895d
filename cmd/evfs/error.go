package main

import "errors"

var (
	// ErrNotSettled occurs when the loop went idle while an operation of the
	// command was still pending.
	ErrNotSettled = errors.New("operation did not settle")

	// ErrSomeFailed occurs when a command over several paths had at least one
	// failing path. The individual failures are logged.
	ErrSomeFailed = errors.New("some operations failed")
)
