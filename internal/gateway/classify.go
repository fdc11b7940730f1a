package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker"

	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/pkg/gemini"
)

// classify maps one attempt error to a gateway failure.
func classify(err error) *domain.GatewayFailure {
	f := &domain.GatewayFailure{Err: err}

	var se *gemini.StatusError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		f.Kind = domain.FailureExhausted
	case errors.Is(err, ErrRateLimited):
		f.Kind = domain.FailureRateLimited
	case errors.As(err, &se):
		f.StatusCode = se.StatusCode
		switch {
		case se.StatusCode == http.StatusRequestTimeout:
			f.Kind, f.Retryable = domain.FailureTimeout, true
		case se.StatusCode == http.StatusTooManyRequests, se.StatusCode >= 500:
			f.Kind, f.Retryable = domain.FailureTransient, true
		case se.StatusCode >= 400:
			f.Kind = domain.FailureRejected
		default:
			f.Kind, f.Retryable = domain.FailureTransient, true
		}
	case errors.Is(err, context.DeadlineExceeded):
		f.Kind, f.Retryable = domain.FailureTimeout, true
	default:
		// transport errors, empty or malformed envelopes
		f.Kind, f.Retryable = domain.FailureTransient, true
	}
	return f
}

// breakerFailure reports whether err should count against the circuit breaker.
func breakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return classify(err).Retryable
}
