package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/desertwitch/evfs/internal/backend"
)

var (
	// ErrSubmissionFailed is matched by every [SubmissionError].
	ErrSubmissionFailed = errors.New("could not submit")

	// ErrOperationFailed is matched by every [OperationError].
	ErrOperationFailed = errors.New("operation failed")

	// ErrNoBackendError is the cause of an [OperationError] for which the
	// backend did not record a last error.
	ErrNoBackendError = errors.New("backend reported failure without an error")

	ErrInvalidPriority = errors.New("priority out of range")
)

// SubmissionError reports a request the backend refused to accept. No
// completion callback is ever invoked for such a request.
type SubmissionError struct {
	Op  backend.Op
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("could not submit %s: %v", e.Op, e.Err)
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// OperationError reports a request the backend accepted but which completed
// with the error sentinel. Err is the backend's last error for the request.
type OperationError struct {
	Op   backend.Op
	Args []any
	Err  error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s(%s): %v", e.Op, FormatArgs(e.Args), e.Err)
}

func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// FormatArgs renders operation arguments for diagnostics. Strings are quoted
// and byte buffers are reduced to their length.
func FormatArgs(args []any) string {
	parts := make([]string, 0, len(args))

	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%q", v))
		case []byte:
			parts = append(parts, fmt.Sprintf("[%d bytes]", len(v)))
		case uint32:
			parts = append(parts, fmt.Sprintf("%#o", v))
		default:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}

	return strings.Join(parts, ", ")
}
