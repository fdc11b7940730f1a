package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/curalink-advisory/internal/domain"
)

// ErrRateLimited is returned when the token bucket refuses admission.
var ErrRateLimited = errors.New("local rate limit exceeded")

// Limiter is the token bucket shared by every call through one Gateway.
type Limiter struct {
	limiter   *rate.Limiter
	mode      string
	maxWait   time.Duration
	unlimited bool
}

// NewLimiter builds a token bucket holding Capacity tokens and refilling at
// RefillPerSecond. A non-positive capacity or refill rate disables limiting.
func NewLimiter(cfg domain.RateLimitConfig) *Limiter {
	mode := cfg.Mode
	if mode == "" {
		mode = domain.RateLimitQueue
	}

	if cfg.Capacity <= 0 || cfg.RefillPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0), mode: mode, unlimited: true}
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RefillPerSecond), cfg.Capacity),
		mode:    mode,
		maxWait: cfg.MaxWait,
	}
}

// Acquire takes one token. In reject mode it never blocks; in queue mode it
// waits up to MaxWait (and never past the caller's deadline).
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.mode == domain.RateLimitReject {
		if !l.limiter.Allow() {
			return ErrRateLimited
		}
		return nil
	}

	waitCtx := ctx
	if l.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.maxWait)
		defer cancel()
	}

	if err := l.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// Tokens reports the tokens currently available. ok is false when limiting
// is disabled.
func (l *Limiter) Tokens() (tokens float64, ok bool) {
	if l.unlimited {
		return 0, false
	}
	return l.limiter.Tokens(), true
}
