package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/pkg/gemini"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      domain.FailureKind
		retryable bool
	}{
		{"408", &gemini.StatusError{StatusCode: 408}, domain.FailureTimeout, true},
		{"429", &gemini.StatusError{StatusCode: 429}, domain.FailureTransient, true},
		{"500", fmt.Errorf("wrapped: %w", &gemini.StatusError{StatusCode: 500}), domain.FailureTransient, true},
		{"400", &gemini.StatusError{StatusCode: 400}, domain.FailureRejected, false},
		{"404", &gemini.StatusError{StatusCode: 404}, domain.FailureRejected, false},
		{"deadline", context.DeadlineExceeded, domain.FailureTimeout, true},
		{"empty envelope", gemini.ErrEmptyResponse, domain.FailureTransient, true},
		{"transport", errors.New("dial tcp: connection refused"), domain.FailureTransient, true},
		{"breaker open", gobreaker.ErrOpenState, domain.FailureExhausted, false},
		{"breaker half-open", gobreaker.ErrTooManyRequests, domain.FailureExhausted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := classify(tt.err)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.retryable, f.Retryable)
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := Config{BackoffBase: 100 * time.Millisecond, BackoffMax: time.Second, JitterFactor: 0.5}

	tests := []struct {
		attempt int
		r       float64
		want    time.Duration
	}{
		{0, 0, 100 * time.Millisecond},
		{1, 0, 200 * time.Millisecond},
		{3, 0, 800 * time.Millisecond},
		{4, 0, time.Second},
		{100, 0, time.Second},
		{0, 0.5, 125 * time.Millisecond},
		{4, 0.5, 1250 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(tt.attempt, cfg, tt.r), "attempt %d r %v", tt.attempt, tt.r)
	}
}

func TestBackoffDelay_IsPure(t *testing.T) {
	cfg := Config{BackoffBase: 50 * time.Millisecond, BackoffMax: 400 * time.Millisecond, JitterFactor: 0.3}
	for i := 0; i < 10; i++ {
		assert.Equal(t, BackoffDelay(2, cfg, 0.25), BackoffDelay(2, cfg, 0.25))
	}
}
