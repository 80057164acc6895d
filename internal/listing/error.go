package listing

import (
	"errors"
	"fmt"

	"github.com/desertwitch/evfs/internal/scheduler"
)

var (
	// ErrClassification is matched by every [ClassificationError].
	ErrClassification = errors.New("unclassifiable entry")

	// ErrUnknownPolicy is returned by [ParsePolicy].
	ErrUnknownPolicy = errors.New("unknown listing policy")

	// ErrUnexpectedData is returned when a stat completion carries no stat
	// buffer.
	ErrUnexpectedData = errors.New("unexpected stat result")
)

// ClassificationError reports an entry whose stat mode is neither a
// directory nor a regular file. It counts as an operation failure of that
// entry.
type ClassificationError struct {
	Path string
	Mode uint32
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("%s: mode %#o is neither a directory nor a regular file", e.Path, e.Mode)
}

func (e *ClassificationError) Is(target error) bool {
	return target == ErrClassification || target == scheduler.ErrOperationFailed
}

// EntryError is the failure of a single entry of a collect-all resolution.
type EntryError struct {
	Name string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ListingError is the rejection of a collect-all resolution with failed
// entries. Listing holds every entry that did resolve.
type ListingError struct {
	Base    string
	Listing *Listing
	Errors  []*EntryError
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("(listing) %s: %d of %d entries failed, first: %v",
		e.Base, len(e.Errors), len(e.Errors)+e.Listing.Len(), e.Errors[0])
}

func (e *ListingError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}

	return errs
}
