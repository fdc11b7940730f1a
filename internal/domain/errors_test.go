package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAPIError(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		message   string
		details   string
		requestID string
	}{
		{
			name:      "Validation error",
			code:      ErrValidation,
			message:   "condition text cannot be empty",
			details:   "field text",
			requestID: "req-123",
		},
		{
			name:      "Upstream timeout",
			code:      ErrUpstreamTimeout,
			message:   "request deadline exceeded",
			requestID: "req-456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError(tt.code, tt.message, tt.details, tt.requestID)

			if err.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("Expected message %s, got %s", tt.message, err.Message)
			}
			if err.Details != tt.details {
				t.Errorf("Expected details %s, got %s", tt.details, err.Details)
			}
			if err.RequestID != tt.requestID {
				t.Errorf("Expected requestID %s, got %s", tt.requestID, err.RequestID)
			}
			if time.Since(err.Timestamp) > time.Minute {
				t.Errorf("Timestamp should be recent, got %v", err.Timestamp)
			}

			expectedError := tt.code + ": " + tt.message
			if err.Error() != expectedError {
				t.Errorf("Expected error string %s, got %s", expectedError, err.Error())
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("text", "condition text cannot be empty", "")

	expected := "validation error for field 'text': condition text cannot be empty"
	if err.Error() != expected {
		t.Errorf("Expected error string %s, got %s", expected, err.Error())
	}
	if !IsValidationError(fmt.Errorf("advise: %w", err)) {
		t.Error("wrapped ValidationError should be detected")
	}
	if IsValidationError(errors.New("other")) {
		t.Error("plain error should not be a ValidationError")
	}
}

func TestGatewayFailure(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name     string
		failure  *GatewayFailure
		expected string
	}{
		{
			name:     "Exhausted with status",
			failure:  &GatewayFailure{Kind: FailureExhausted, Attempts: 3, StatusCode: 503, Err: cause},
			expected: "gateway exhausted after 3 attempt(s) (status 503): connection reset",
		},
		{
			name:     "Rate limited",
			failure:  &GatewayFailure{Kind: FailureRateLimited},
			expected: "gateway rate_limited after 0 attempt(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.failure.Error() != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, tt.failure.Error())
			}
		})
	}

	wrapped := fmt.Errorf("send: %w", &GatewayFailure{Kind: FailureTransient, Err: cause})
	if !errors.Is(wrapped, cause) {
		t.Error("GatewayFailure should unwrap to its cause")
	}
}

func TestIsCallerTimeout(t *testing.T) {
	if !IsCallerTimeout(&GatewayFailure{Kind: FailureTimeout, CallerDone: true}) {
		t.Error("caller-caused timeout should be detected")
	}
	if IsCallerTimeout(&GatewayFailure{Kind: FailureTimeout}) {
		t.Error("attempt timeout is not a caller timeout")
	}
	if IsCallerTimeout(&ParseFailure{Kind: KindCondition, Reason: "empty"}) {
		t.Error("ParseFailure is not a caller timeout")
	}
}

func TestErrorConstants(t *testing.T) {
	expected := map[string]string{
		ErrInvalidInput:    "INVALID_INPUT",
		ErrValidation:      "VALIDATION_ERROR",
		ErrUpstreamTimeout: "UPSTREAM_TIMEOUT",
		ErrInternalServer:  "INTERNAL_SERVER_ERROR",
	}

	for actual, want := range expected {
		if actual != want {
			t.Errorf("Expected %s, got %s", want, actual)
		}
	}
}
