// Package errors provides standardized error types for the query gateway.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for gateway outcomes. The four stage codes represent expected
// security rejections, not system failures.
const (
	CodeSanitizationRejected = "SANITIZATION_REJECTED"
	CodeComplexityExceeded   = "COMPLEXITY_EXCEEDED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeReadOnlyViolation    = "READ_ONLY_VIOLATION"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeExecutionFailed      = "EXECUTION_FAILED"
	CodeAuditFailed          = "AUDIT_FAILED"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInternal             = "INTERNAL_ERROR"
)

// GatewayError represents a gateway error with code, message, and optional details.
type GatewayError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *GatewayError) Is(target error) bool {
	t, ok := target.(*GatewayError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail adds a single detail to the error.
func (e *GatewayError) WithDetail(key string, value any) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Common errors
var (
	ErrEmptyQuery       = &GatewayError{Code: CodeInvalidRequest, Message: "query cannot be empty"}
	ErrQueryTooLong     = &GatewayError{Code: CodeSanitizationRejected, Message: "query exceeds maximum length"}
	ErrRateLimited      = &GatewayError{Code: CodeRateLimited, Message: "rate limit exceeded"}
	ErrReadOnly         = &GatewayError{Code: CodeReadOnlyViolation, Message: "write operation on read-only deployment"}
	ErrExecutionFailed  = &GatewayError{Code: CodeExecutionFailed, Message: "query execution failed"}
	ErrAuditUnavailable = &GatewayError{Code: CodeAuditFailed, Message: "audit log unavailable"}
)

// New creates a new GatewayError with the given code and message.
func New(code, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a GatewayError.
func Wrap(err error, code, message string) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...any) *GatewayError {
	if err == nil {
		return nil
	}
	return &GatewayError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsRejection reports whether an error is an expected security rejection
// rather than an internal fault.
func IsRejection(err error) bool {
	switch GetCode(err) {
	case CodeSanitizationRejected, CodeComplexityExceeded, CodeRateLimited, CodeReadOnlyViolation:
		return true
	}
	return false
}

// IsRateLimited checks if an error is a rate-limit rejection.
func IsRateLimited(err error) bool {
	return GetCode(err) == CodeRateLimited
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return err.Error()
}
