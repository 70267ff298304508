package feed

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the presentation layer. Sources and collections
// never retry; every failure is returned to the caller as one of these.
var (
	// ErrConnection is returned when the backend cannot be reached.
	ErrConnection = errors.New("connection error")

	// ErrNotFound is returned when a referenced document is absent.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed caller input, including a filter
	// or cursor that does not match the active subscription.
	ErrValidation = errors.New("validation error")
)

// ErrClosed is returned when an operation targets a closed collection, or when
// a LoadMore completes after its subscription was closed or replaced. In the
// latter case the fetched page has been discarded.
var ErrClosed = errors.New("collection closed")

// Error carries an error kind together with the failing operation and cause.
// errors.Is matches both the kind and the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConnectionError wraps err as an ErrConnection for op.
func ConnectionError(op string, err error) error {
	return &Error{Kind: ErrConnection, Op: op, Err: err}
}

// NotFoundError wraps err as an ErrNotFound for op.
func NotFoundError(op string, err error) error {
	return &Error{Kind: ErrNotFound, Op: op, Err: err}
}

// ValidationError builds an ErrValidation for op from a formatted message.
func ValidationError(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// classify leaves typed errors alone and treats anything else coming back
// from a source as a connection failure.
func classify(op string, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return ConnectionError(op, err)
}
