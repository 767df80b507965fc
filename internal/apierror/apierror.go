// Package apierror provides standardized error values and response envelopes
// for the API. All errors returned to clients go through this package to ensure
// consistency and to prevent leaking internal details (stack traces, DB errors, etc.).
package apierror

import (
	"errors"
	"net/http"
)

// Code is the stable, machine-readable error category.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeTenantNotResolved Code = "TENANT_NOT_RESOLVED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeConflict          Code = "CONFLICT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInternal          Code = "INTERNAL"
	// CodeUnauthorized is only produced by the transport layer (missing/invalid bearer).
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeRateLimited is only produced by the rate limiter middleware.
	CodeRateLimited Code = "RATE_LIMITED"
)

// Error is the domain error carried through services and repositories.
// Message is safe to show to callers; Err is the internal cause and is only logged.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrX) works for sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
	}
	return false
}

func Validation(msg string) *Error { return &Error{Code: CodeValidation, Message: msg} }
func Forbidden(msg string) *Error  { return &Error{Code: CodeForbidden, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Code: CodeConflict, Message: msg} }
func NotFound(msg string) *Error   { return &Error{Code: CodeNotFound, Message: msg} }

func TenantNotResolved(msg string) *Error {
	return &Error{Code: CodeTenantNotResolved, Message: msg}
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "Error interno del servidor", Err: err}
}

// Wrap attaches an internal cause to a client-facing error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the code of err, defaulting to INTERNAL for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != CodeInternal {
		return e.Message
	}
	return "Error interno del servidor"
}

// HTTPStatus maps a code to its HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeTenantNotResolved:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Code   Code   `json:"code"`
	Detail string `json:"detail"`
}

func New(code Code, msg string) *APIError {
	return &APIError{Code: code, Detail: msg}
}

// FromError builds the envelope for err without exposing internal causes.
func FromError(err error) *APIError {
	return &APIError{Code: CodeOf(err), Detail: MessageOf(err)}
}

// ValidationError wraps multiple field errors.
type ValidationError struct {
	Code   Code              `json:"code"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Code: CodeValidation, Detail: "Error de validacion", Fields: fields}
}
