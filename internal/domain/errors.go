package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput    = "INVALID_INPUT"
	ErrValidation      = "VALIDATION_ERROR"
	ErrUpstreamTimeout = "UPSTREAM_TIMEOUT"
	ErrInternalServer  = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// FailureKind classifies why the model gateway could not produce text.
type FailureKind string

const (
	// FailureTimeout: an attempt or the caller's deadline ran out.
	FailureTimeout FailureKind = "timeout"
	// FailureRejected: the upstream refused the request (4xx).
	FailureRejected FailureKind = "rejected"
	// FailureRateLimited: the local token bucket refused admission.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureTransient: 429, 5xx, transport error or empty envelope.
	FailureTransient FailureKind = "transient"
	// FailureExhausted: retries ran out or the circuit breaker is open.
	FailureExhausted FailureKind = "exhausted"
)

// GatewayFailure is the only error type returned by the model gateway.
type GatewayFailure struct {
	Kind       FailureKind
	Retryable  bool
	Attempts   int
	StatusCode int
	// CallerDone is set when the failure was caused by the caller's own context.
	CallerDone bool
	Err        error
}

// Error implements the error interface
func (f *GatewayFailure) Error() string {
	msg := fmt.Sprintf("gateway %s after %d attempt(s)", f.Kind, f.Attempts)
	if f.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", f.StatusCode)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (f *GatewayFailure) Unwrap() error { return f.Err }

// ParseFailure is returned when a model reply holds no usable content.
type ParseFailure struct {
	Kind   RequestKind
	Reason string
}

// Error implements the error interface
func (e *ParseFailure) Error() string {
	return fmt.Sprintf("failed to parse %s response: %s", e.Kind, e.Reason)
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCallerTimeout reports whether err is a gateway failure caused by the
// caller's own deadline or cancellation.
func IsCallerTimeout(err error) bool {
	var gf *GatewayFailure
	return errors.As(err, &gf) && gf.CallerDone
}
