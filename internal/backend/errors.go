package backend

import (
	"errors"
	"fmt"
)

// ErrBackend matches every *Error with errors.Is.
var ErrBackend = errors.New("backend error")

// Error is a domain failure reported by an execution backend.
type Error struct {
	// Backend names the failing backend.
	Backend string
	// Detail is a human-readable explanation.
	Detail string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Detail, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Backend, e.Detail)
	}
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches ErrBackend.
func (e *Error) Is(target error) bool {
	return target == ErrBackend
}

func fail(backend string, err error, format string, args ...any) *Error {
	return &Error{Backend: backend, Detail: fmt.Sprintf(format, args...), Err: err}
}
