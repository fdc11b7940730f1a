package gateway

import (
	"context"
	"time"
)

// BackoffDelay returns the wait before retry number attempt (0 for the first
// retry): min(base*2^attempt, max) scaled by (1 + jitterFactor*r), where r is
// in [0,1).
func BackoffDelay(attempt int, cfg Config, r float64) time.Duration {
	delay := cfg.BackoffBase
	for i := 0; i < attempt && i < 40; i++ {
		if cfg.BackoffMax > 0 && delay >= cfg.BackoffMax {
			break
		}
		delay *= 2
	}
	if cfg.BackoffMax > 0 && delay > cfg.BackoffMax {
		delay = cfg.BackoffMax
	}

	return time.Duration(float64(delay) * (1 + cfg.JitterFactor*r))
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
