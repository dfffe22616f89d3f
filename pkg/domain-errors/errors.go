// Package dErrors provides coded domain errors. Services and domain logic
// return these so transports can map failures to responses without string
// matching, and so tests can assert on failure class rather than message.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are part of the API contract:
// handlers translate them to HTTP statuses and clients branch on them.
type Code string

const (
	// CodeValidation marks malformed construction or mutation input:
	// empty recipients, zero or overflowing durations, undefined
	// data-category bits, empty purposes, zero-flag authorization queries.
	CodeValidation Code = "validation"

	// CodeBadRequest marks transport-level input that could not be parsed
	// into domain values at all.
	CodeBadRequest Code = "bad_request"

	// CodeUnauthorized marks a caller lacking the role or delegation the
	// requested mutation requires.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks callers that are authenticated but barred from
	// the operation outright, such as delegates managing the delegate set.
	CodeForbidden Code = "forbidden"

	CodeNotFound Code = "not_found"
	CodeConflict Code = "conflict"

	// CodeExpired is informational: the record exists and is well formed
	// but its validity window has elapsed. Queries still return false
	// rather than this error; it only appears in diagnostics.
	CodeExpired Code = "expired"

	// CodeInvariantViolation marks states that should be unreachable when
	// the state machine is correct. Seeing one is a bug, not bad input.
	CodeInvariantViolation Code = "invariant_violation"

	CodeTimeout  Code = "timeout"
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.Unwrap.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that did not originate in the domain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
