// Package apperr models the error kinds from the core's error-handling
// design as a flat enum rather than a type hierarchy, so every layer
// (service, handler, background worker) can branch on one field instead
// of type-asserting concrete error types.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds the core distinguishes at its boundary.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindTransient      Kind = "transient"
	KindFatal          Kind = "fatal"
)

// Error wraps an inner error with the Kind needed to pick an HTTP status
// and log level at the boundary.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, Err: err}
}

func Validation(msg string) *Error          { return newErr(KindValidation, msg, nil) }
func Unauthenticated(msg string) *Error     { return newErr(KindUnauthenticated, msg, nil) }
func Forbidden(msg string) *Error           { return newErr(KindForbidden, msg, nil) }
func NotFound(msg string) *Error            { return newErr(KindNotFound, msg, nil) }
func Conflict(msg string) *Error            { return newErr(KindConflict, msg, nil) }
func Transient(msg string, err error) *Error { return newErr(KindTransient, msg, err) }
func Fatal(msg string, err error) *Error    { return newErr(KindFatal, msg, err) }

// KindOf extracts the Kind from err, defaulting to KindFatal for any
// error that was not constructed through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// StatusCode maps a Kind to the HTTP status the spec's error-handling
// design assigns it.
func StatusCode(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
