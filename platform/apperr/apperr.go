// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors, and the HTTP layer
// automatically maps them to HTTP status codes and the error envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., duplicate).
	KindConflict
	// KindForbidden indicates the action is not allowed for the user.
	KindForbidden
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindBadRequest indicates a malformed or invalid request.
	KindBadRequest
	// KindInternal indicates an unexpected internal error.
	KindInternal
	// KindBusinessLogic indicates a domain rule was violated.
	KindBusinessLogic
	// KindPaymentRequired indicates the caller lacks credits.
	KindPaymentRequired
	// KindRateLimited indicates the caller exceeded a rate limit.
	KindRateLimited
	// KindUnavailable indicates a retryable upstream failure.
	KindUnavailable
)

// Machine-readable error codes used in the response envelope.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeForbidden           = "FORBIDDEN"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeBusinessLogic       = "BUSINESS_LOGIC_ERROR"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable         = "UPSTREAM_UNAVAILABLE"
	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
)

// Error is a domain error with a typed Kind for HTTP mapping.
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	Op        string      // Operation that failed (optional)
	Err       error       // Underlying error (optional)
	Details   interface{} // Additional details for response (optional)
	Retryable *bool       // Explicit retry hint for callers (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest, KindBusinessLogic:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// ErrorCode returns the machine code, falling back to the kind default.
func (e *Error) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return defaultCode(e.Kind)
}

func defaultCode(kind Kind) string {
	switch kind {
	case KindNotFound:
		return CodeNotFound
	case KindValidation:
		return CodeValidation
	case KindConflict:
		return CodeConflict
	case KindForbidden:
		return CodeForbidden
	case KindUnauthorized:
		return CodeUnauthorized
	case KindInternal:
		return CodeInternal
	case KindBusinessLogic:
		return CodeBusinessLogic
	case KindPaymentRequired:
		return CodeInsufficientCredits
	case KindRateLimited:
		return CodeRateLimited
	case KindUnavailable:
		return CodeUnavailable
	default:
		return CodeBadRequest
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// WithCode overrides the machine-readable code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithRetryable sets the retry hint.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = &retryable
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error (e.g., duplicate resource).
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return New(KindForbidden, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Internal creates an internal server error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// BusinessLogic creates a domain rule violation error.
func BusinessLogic(code, message string) *Error {
	return &Error{Kind: KindBusinessLogic, Code: code, Message: message}
}

// InsufficientCredits creates a payment required error.
func InsufficientCredits(message string) *Error {
	return New(KindPaymentRequired, message)
}

// RateLimited creates a rate limit error.
func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

// Unavailable creates a retryable upstream error.
func Unavailable(message string, err error) *Error {
	return Wrap(KindUnavailable, message, err).WithRetryable(true)
}

// GetKind extracts the error kind from an error.
// Returns KindUnknown if the error is not an *Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// HasCode reports whether err is an *Error carrying the given code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.ErrorCode() == code
	}
	return false
}
