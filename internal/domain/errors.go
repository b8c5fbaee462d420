package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for boundary translation. The HTTP adapter
// maps kinds to status codes; core code only ever deals in kinds.
type Kind int

// Error kinds.
const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindRateLimited
	KindLocked
	KindNotFound
	KindIntegrity
	KindDependency
)

// Error is the single tagged error type returned by core operations.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set for RateLimited and Locked errors.
	RetryAfter time.Duration
	// Fields holds per-field validation detail, safe to expose.
	Fields map[string]string
	cause  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Errorf creates an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr wraps cause in an Error of the given kind.
func WrapErr(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the kind of err, or KindDependency for untagged errors
// so that unexpected store failures never leak internals to clients.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDependency
}

// RetryAfterOf returns the retry-after hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// FieldsOf returns per-field validation detail carried by err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
