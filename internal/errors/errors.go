package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a failure for cleanup purposes.
type Code string

const (
	ErrNotFound   Code = "NOT_FOUND"  // already gone, counts as deleted
	ErrForbidden  Code = "FORBIDDEN"  // no permission, never retried
	ErrTransient  Code = "TRANSIENT"  // network or platform hiccup
	ErrValidation Code = "VALIDATION" // malformed tracked data
	ErrInternal   Code = "INTERNAL"
)

// BotError is a structured error with a classification code.
type BotError struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *BotError) Unwrap() error {
	return e.Err
}

// NewNotFound creates an error for a platform object that no longer exists.
func NewNotFound(resource, id string) *BotError {
	return &BotError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NewForbidden creates an error for an operation the bot lacks permission for.
func NewForbidden(resource, id string) *BotError {
	return &BotError{
		Code:    ErrForbidden,
		Message: fmt.Sprintf("missing permission for %s %s", resource, id),
		Details: map[string]any{"resource": resource, "id": id},
	}
}

// NewTransient wraps a failure that may succeed on a later attempt.
func NewTransient(op string, err error) *BotError {
	return &BotError{
		Code:    ErrTransient,
		Message: op,
		Err:     err,
	}
}

// NewValidation creates an error for malformed input or tracked data.
func NewValidation(msg string) *BotError {
	return &BotError{
		Code:    ErrValidation,
		Message: msg,
	}
}

// NewInternal wraps an unexpected internal error.
func NewInternal(err error) *BotError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BotError{
		Code:    ErrInternal,
		Message: msg,
		Err:     err,
	}
}

// Is reports whether err (or anything it wraps) is a BotError with the given code.
func Is(err error, code Code) bool {
	var bErr *BotError
	if stderrors.As(err, &bErr) {
		return bErr.Code == code
	}
	return false
}

// Classify returns the code for err. Errors that carry no classification
// are treated as transient; nil returns the empty code.
func Classify(err error) Code {
	if err == nil {
		return ""
	}
	var bErr *BotError
	if stderrors.As(err, &bErr) {
		return bErr.Code
	}
	return ErrTransient
}
