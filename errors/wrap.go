package errors

import (
	"fmt"
	"strings"
)

// Error wraps a kind sentinel with a message and optional detail.
type Error struct {
	// Err is the kind sentinel
	Err error

	// Message describes what went wrong
	Message string

	// Detail provides additional context, usually the underlying cause
	Detail string
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}

	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) error {
	return &Error{Err: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(format string, args ...any) error {
	return &Error{Err: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) error {
	return &Error{Err: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

// Integrity creates an integrity error.
func Integrity(format string, args ...any) error {
	return &Error{Err: ErrIntegrity, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an underlying cause as an internal error.
// A nil cause returns nil.
func Internal(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}

	// Preserve an already-classified error instead of burying its kind.
	var classified *Error
	if As(cause, &classified) {
		return cause
	}

	return &Error{
		Err:     ErrInternal,
		Message: fmt.Sprintf(format, args...),
		Detail:  cause.Error(),
	}
}

// Busy creates a busy error carrying the last underlying failure.
func Busy(cause error, format string, args ...any) error {
	e := &Error{Err: ErrBusy, Message: fmt.Sprintf(format, args...)}
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}
