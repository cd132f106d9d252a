// Package apperr defines the closed set of error variants used at the HTTP
// boundary. Every failure that can cross a handler boundary is wrapped in an
// *Error carrying a machine-readable code and an HTTP status, so the boundary
// layer switches on the variant rather than inspecting message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies an error variant. The set is closed: adding a new Kind means
// adding a new boundary behaviour, which is a deliberate API change.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindUnauthorized           Kind = "unauthorized"
	KindForbidden              Kind = "forbidden"
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindRateLimited            Kind = "rate_limited"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindConnectionUnavailable  Kind = "connection_unavailable"
	KindInternal               Kind = "internal"
)

// Error is a tagged error variant with a stable machine code.
type Error struct {
	Kind    Kind
	Code    string // machine-readable, e.g. ORGANIZATION_SUSPENDED
	Message string // safe to show to the client
	Details map[string]any
	Err     error // wrapped cause, never serialized to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the variant to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidStateTransition:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConnectionUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Validation returns a 400-class client input error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// Forbidden returns a 403-class error with a machine-readable reason code.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// NotFound returns a 404-class error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// RateLimited returns a 429-class error. RetryAfter is carried in Details so
// the boundary can surface it both as a JSON field and a Retry-After header.
func RateLimited(code, message string, retryAfterSeconds int) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Code:    code,
		Message: message,
		Details: map[string]any{"retryAfter": retryAfterSeconds},
	}
}

// Internal returns a 500-class error wrapping cause. The wrapped cause is for
// logs only and is never serialized to the client.
func Internal(code, message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: code, Message: message, Err: cause}
}

// ConnectionUnavailable returns the 503-class condition raised when a pooled
// database connection cannot be acquired. The client sees a generic retry
// message; the cause stays in server logs.
func ConnectionUnavailable(cause error) *Error {
	return &Error{
		Kind:    KindConnectionUnavailable,
		Code:    "CONNECTION_UNAVAILABLE",
		Message: "Service temporarily unavailable, please try again",
		Err:     cause,
	}
}

// As extracts an *Error from err's chain, or nil if there is none.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// RetryAfter returns the retryAfter detail of a rate-limited error, 0 otherwise.
func (e *Error) RetryAfter() int {
	if e.Details == nil {
		return 0
	}
	if v, ok := e.Details["retryAfter"].(int); ok {
		return v
	}
	return 0
}
