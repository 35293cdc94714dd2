package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes shared across the step-up authentication packages
const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"

	// Enrollment errors
	ErrCodeNotEnabled ErrorCode = "NOT_ENABLED"

	// Challenge lifecycle errors
	ErrCodeChallengeExpired  ErrorCode = "CHALLENGE_EXPIRED"
	ErrCodeChallengeNotFound ErrorCode = "CHALLENGE_NOT_FOUND"
	ErrCodeInvalidCode       ErrorCode = "INVALID_CODE"

	// Throttling errors
	ErrCodeRateLimited   ErrorCode = "RATE_LIMITED"
	ErrCodeAccountLocked ErrorCode = "ACCOUNT_LOCKED"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an existing error with code and formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetDetails extracts the details from an error
// Returns nil if the error is not a structured Error
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	// 400 Bad Request
	case ErrCodeValidation, ErrCodeNotEnabled:
		return http.StatusBadRequest

	// 401 Unauthorized
	case ErrCodeUnauthorized, ErrCodeInvalidCode,
		ErrCodeChallengeExpired, ErrCodeChallengeNotFound:
		return http.StatusUnauthorized

	// 403 Forbidden
	case ErrCodeForbidden, ErrCodeAccountLocked:
		return http.StatusForbidden

	// 404 Not Found
	case ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case ErrCodeConflict:
		return http.StatusConflict

	// 429 Too Many Requests
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests

	// 500 Internal Server Error (default)
	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// NotEnabled creates a "2FA not enabled" error
func NotEnabled(userID string) *Error {
	return New(ErrCodeNotEnabled, "two-factor authentication is not enabled").
		WithDetail("user_id", userID)
}

// ChallengeExpired creates a "challenge expired" error
func ChallengeExpired() *Error {
	return New(ErrCodeChallengeExpired, "challenge has expired")
}

// ChallengeNotFound creates a "challenge not found" error
func ChallengeNotFound() *Error {
	return New(ErrCodeChallengeNotFound, "challenge not found")
}

// InvalidCode creates an "invalid code" error carrying the attempts left
func InvalidCode(attemptsRemaining int) *Error {
	return New(ErrCodeInvalidCode, "invalid verification code").
		WithDetail("attempts_remaining", attemptsRemaining)
}

// AccountLocked creates an "account locked" error
func AccountLocked(lockedUntil interface{}) *Error {
	err := New(ErrCodeAccountLocked, "account is temporarily locked")
	if lockedUntil != nil {
		err.WithDetail("locked_until", lockedUntil)
	}
	return err
}

// RateLimited creates a "rate limited" error
func RateLimited(retryAfter string) *Error {
	err := New(ErrCodeRateLimited, "too many requests")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}

// Forbidden creates a "forbidden" error
func Forbidden(message string) *Error {
	return New(ErrCodeForbidden, message)
}

// Unauthorized creates an "unauthorized" error
func Unauthorized(message string) *Error {
	return New(ErrCodeUnauthorized, message)
}

// Validation creates a "validation error" with field details
func Validation(field, reason string) *Error {
	return New(ErrCodeValidation, fmt.Sprintf("invalid %s: %s", field, reason))
}

// ValidationFailed creates a "validation error" carrying multiple field details
func ValidationFailed(details map[string]interface{}) *Error {
	return New(ErrCodeValidation, "validation failed").WithDetails(details)
}

// Internal creates an "internal error"
func Internal(message string) *Error {
	return New(ErrCodeInternal, message)
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
