// Package gateway sends prompts to the model under a per-attempt timeout, with
// retries, a shared token bucket, and a circuit breaker.
package gateway

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/prompt"
	"github.com/curalink-advisory/pkg/gemini"
)

// Config controls one Gateway.
type Config struct {
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	JitterFactor float64
	RateLimit    domain.RateLimitConfig
	Breaker      domain.BreakerConfig
}

// ConfigFrom combines the gateway section with the configured model.
func ConfigFrom(gw domain.GatewayConfig, model string) Config {
	return Config{
		Model:        model,
		Timeout:      gw.Timeout,
		MaxRetries:   gw.MaxRetries,
		BackoffBase:  gw.BackoffBase,
		BackoffMax:   gw.BackoffMax,
		JitterFactor: gw.JitterFactor,
		RateLimit:    gw.RateLimit,
		Breaker:      gw.Breaker,
	}
}

// Response is the raw model text of a successful send.
type Response struct {
	Text     string
	Attempts int
	Latency  time.Duration
}

// Stats is a snapshot of gateway counters.
type Stats struct {
	Sends        int64  `json:"sends"`
	Attempts     int64  `json:"attempts"`
	Successes    int64  `json:"successes"`
	Failures     int64  `json:"failures"`
	BreakerState string `json:"breaker_state"`
	// RateTokens is nil when rate limiting is disabled.
	RateTokens *float64 `json:"rate_tokens,omitempty"`
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

// WithJitter replaces the jitter source; it must return values in [0,1).
func WithJitter(jitter func() float64) Option {
	return func(g *Gateway) { g.jitter = jitter }
}

// Gateway is safe for concurrent use. Its limiter and breaker are shared by
// every call made through it and by nothing else.
type Gateway struct {
	client  gemini.Generator
	cfg     Config
	limiter *Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() float64

	sends     atomic.Int64
	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
}

// New creates a Gateway around client.
func New(client gemini.Generator, cfg Config, logger *logrus.Logger, opts ...Option) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}

	g := &Gateway{
		client:  client,
		cfg:     cfg,
		limiter: NewLimiter(cfg.RateLimit),
		logger:  logger,
		sleep:   sleepContext,
		jitter:  rand.Float64,
	}
	if cfg.Breaker.Enabled {
		g.breaker = newBreaker(cfg.Breaker, logger)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newBreaker(cfg domain.BreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: halfOpen,
		Interval:    cfg.Interval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !breakerFailure(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// Send delivers p to the model and returns its unparsed text. Every error is a
// *domain.GatewayFailure.
func (g *Gateway) Send(ctx context.Context, p prompt.Prompt) (*Response, error) {
	g.sends.Add(1)
	start := time.Now()

	resp, err := g.send(ctx, p)
	if err != nil {
		g.failures.Add(1)
		var f *domain.GatewayFailure
		if errors.As(err, &f) {
			g.logger.WithFields(logrus.Fields{
				"kind":         p.Kind,
				"failure":      f.Kind,
				"attempts":     f.Attempts,
				"status_code":  f.StatusCode,
				"caller_done":  f.CallerDone,
				"latency_ms":   time.Since(start).Milliseconds(),
				"prompt_chars": len(p.Text),
			}).Warn("Model call failed")
		}
		return nil, err
	}

	g.successes.Add(1)
	resp.Latency = time.Since(start)
	g.logger.WithFields(logrus.Fields{
		"kind":       p.Kind,
		"attempts":   resp.Attempts,
		"latency_ms": resp.Latency.Milliseconds(),
	}).Debug("Model call succeeded")
	return resp, nil
}

func (g *Gateway) send(ctx context.Context, p prompt.Prompt) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, callerFailure(0, err)
	}

	var (
		attempts int
		last     *domain.GatewayFailure
	)
	for retry := 0; retry <= g.cfg.MaxRetries; retry++ {
		if retry > 0 {
			delay := BackoffDelay(retry-1, g.cfg, g.jitter())
			if err := g.sleep(ctx, delay); err != nil {
				return nil, callerFailure(attempts, err)
			}
		}

		if err := g.limiter.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, callerFailure(attempts, ctx.Err())
			}
			return nil, &domain.GatewayFailure{Kind: domain.FailureRateLimited, Attempts: attempts, Err: err}
		}

		attempts++
		g.attempts.Add(1)
		text, err := g.attempt(ctx, p.Text)
		if err == nil {
			return &Response{Text: text, Attempts: attempts}, nil
		}
		if ctx.Err() != nil {
			return nil, callerFailure(attempts, ctx.Err())
		}

		f := classify(err)
		f.Attempts = attempts
		if !f.Retryable {
			return nil, f
		}
		last = f

		g.logger.WithFields(logrus.Fields{
			"kind":        p.Kind,
			"attempt":     attempts,
			"failure":     f.Kind,
			"status_code": f.StatusCode,
		}).Debug("Retrying model call")
	}

	return nil, &domain.GatewayFailure{
		Kind:       domain.FailureExhausted,
		Attempts:   attempts,
		StatusCode: last.StatusCode,
		Err:        last.Err,
	}
}

func (g *Gateway) attempt(ctx context.Context, text string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	call := func() (interface{}, error) {
		return g.client.Generate(attemptCtx, g.cfg.Model, text)
	}

	if g.breaker == nil {
		out, err := call()
		if err != nil {
			return "", err
		}
		return out.(string), nil
	}

	out, err := g.breaker.Execute(call)
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func callerFailure(attempts int, err error) *domain.GatewayFailure {
	return &domain.GatewayFailure{
		Kind:       domain.FailureTimeout,
		Attempts:   attempts,
		CallerDone: true,
		Err:        err,
	}
}

// Stats returns a snapshot of the gateway counters.
func (g *Gateway) Stats() Stats {
	s := Stats{
		Sends:        g.sends.Load(),
		Attempts:     g.attempts.Load(),
		Successes:    g.successes.Load(),
		Failures:     g.failures.Load(),
		BreakerState: "disabled",
	}
	if g.breaker != nil {
		s.BreakerState = g.breaker.State().String()
	}
	if tokens, ok := g.limiter.Tokens(); ok {
		s.RateTokens = &tokens
	}
	return s
}
