package handlers

import (
	"fmt"

	"github.com/pkg/errors"
)

// RecoverableError indicates that a change event couldn't be processed because of a condition that's
// likely to be temporary, such as the database being unavailable. Messages that fail with a recoverable
// error are requeued.
type RecoverableError struct {
	message string
	cause   error
}

// Error returns the error message, followed by the message of the underlying cause if there is one.
func (e RecoverableError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

// Unwrap returns the underlying cause of the error.
func (e RecoverableError) Unwrap() error {
	return e.cause
}

// NewRecoverableError returns a new error that is marked as being recoverable.
func NewRecoverableError(formatString string, a ...interface{}) RecoverableError {
	return RecoverableError{message: fmt.Sprintf(formatString, a...)}
}

// WrapRecoverable marks an existing error as recoverable.
func WrapRecoverable(cause error, formatString string, a ...interface{}) RecoverableError {
	return RecoverableError{message: fmt.Sprintf(formatString, a...), cause: cause}
}

// UnrecoverableError indicates that a change event can never be processed, usually because the message
// is malformed. Messages that fail with an unrecoverable error are discarded.
type UnrecoverableError struct {
	message string
	cause   error
}

// Error returns the error message, followed by the message of the underlying cause if there is one.
func (e UnrecoverableError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

// Unwrap returns the underlying cause of the error.
func (e UnrecoverableError) Unwrap() error {
	return e.cause
}

// NewUnrecoverableError returns a new error that is marked as being unrecoverable.
func NewUnrecoverableError(formatString string, a ...interface{}) UnrecoverableError {
	return UnrecoverableError{message: fmt.Sprintf(formatString, a...)}
}

// WrapUnrecoverable marks an existing error as unrecoverable.
func WrapUnrecoverable(cause error, formatString string, a ...interface{}) UnrecoverableError {
	return UnrecoverableError{message: fmt.Sprintf(formatString, a...), cause: cause}
}

// IsRecoverable returns true if the error or any error that it wraps is a RecoverableError.
func IsRecoverable(err error) bool {
	var recoverable RecoverableError
	return errors.As(err, &recoverable)
}
