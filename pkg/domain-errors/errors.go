// Package domainerrors provides the coded error type used across service
// boundaries. Services create or wrap errors with a Code; the HTTP layer maps
// codes to status responses in one place.
//
// For infrastructure facts (row missing, conflict on insert) stores return
// pkg/platform/sentinel errors; services translate those into coded errors
// here before they cross a handler boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a domain error. The string value is the wire
// format returned in JSON error envelopes.
type Code string

const (
	CodeInvalidInput   Code = "invalid_input"
	CodeBadRequest     Code = "bad_request"
	CodeValidation     Code = "validation_error"
	CodeNotFound       Code = "not_found"
	CodeInvalidState   Code = "invalid_state"
	CodeTransferFailed Code = "transfer_failed"
	CodeConflict       Code = "conflict"
	CodeUnauthorized   Code = "unauthorized"
	CodeForbidden      Code = "forbidden"
	CodeTimeout        Code = "timeout"
	// CodeInvariantViolation marks a bug: a state the system promises can
	// never occur. Surfaced as an internal error, logged loudly.
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a coded domain error. Violations carries the aggregated
// business-rule failures for transfer_failed results so the transport layer
// can return every violation in one response.
type Error struct {
	Code       Code
	Message    string
	Violations []string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded domain error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithViolations attaches the aggregated rule violations to the error.
func (e *Error) WithViolations(violations []string) *Error {
	e.Violations = violations
	return e
}

// HasCode reports whether err is (or wraps) a domain error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is supports errors.Is matching on code equality.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// ToHTTPStatus maps a domain error code to an HTTP status. Unknown codes map
// to 500 so new codes fail safe.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusConflict
	case CodeTransferFailed:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
