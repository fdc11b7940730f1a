// Package advisory is the facade over prompt building, the model gateway and
// response parsing. Every valid request gets a typed result: a model answer, a
// cached answer, or a deterministic fallback.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/curalink-advisory/internal/conditions"
	"github.com/curalink-advisory/internal/domain"
	"github.com/curalink-advisory/internal/gateway"
	"github.com/curalink-advisory/internal/parser"
	"github.com/curalink-advisory/internal/prompt"
	"github.com/curalink-advisory/internal/telemetry"
)

const recordTimeout = 2 * time.Second

// Sender delivers a prompt to the model. *gateway.Gateway implements it.
type Sender interface {
	Send(ctx context.Context, p prompt.Prompt) (*gateway.Response, error)
}

type statsReporter interface {
	Stats() gateway.Stats
}

// Config holds the parts of the service configuration the facade needs.
type Config struct {
	Prompt domain.PromptConfig
	Cache  domain.CacheConfig
}

// Status is a snapshot of the service counters.
type Status struct {
	Requests     int64          `json:"requests"`
	CacheHits    int64          `json:"cache_hits"`
	ModelAnswers int64          `json:"model_answers"`
	Fallbacks    int64          `json:"fallbacks"`
	Invalid      int64          `json:"invalid"`
	Timeouts     int64          `json:"timeouts"`
	CacheEntries int            `json:"cache_entries"`
	RedisEnabled bool           `json:"redis_enabled"`
	Gateway      *gateway.Stats `json:"gateway,omitempty"`
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder sends an event for every call to r.
func WithRecorder(r telemetry.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithRedis adds a shared cache tier behind the memory cache.
func WithRedis(client *redis.Client) Option {
	return func(s *Service) { s.redisClient = client }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements domain.Advisor. Each instance owns its cache and
// single-flight group; the rate limiter and breaker belong to its Sender.
type Service struct {
	builder    *prompt.Builder
	sender     Sender
	parser     *parser.Parser
	conditions *conditions.Processor
	cache      *tieredCache
	group      singleflight.Group
	recorder   telemetry.Recorder
	logger     *logrus.Logger
	now        func() time.Time

	redisClient  *redis.Client
	redisTimeout time.Duration

	requests     atomic.Int64
	cacheHits    atomic.Int64
	modelAnswers atomic.Int64
	fallbacks    atomic.Int64
	invalid      atomic.Int64
	timeouts     atomic.Int64
}

var _ domain.Advisor = (*Service)(nil)

// resolution is the shared outcome of one single-flight call.
type resolution struct {
	result   domain.AdvisoryResult
	attempts int
	failure  domain.FailureKind
}

// NewService wires the facade around sender.
func NewService(cfg Config, sender Sender, logger *logrus.Logger, opts ...Option) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	proc := conditions.NewProcessor()
	s := &Service{
		builder:      prompt.NewBuilder(cfg.Prompt),
		sender:       sender,
		parser:       parser.New(proc.KnownSpecialties()),
		conditions:   proc,
		recorder:     telemetry.NopRecorder{},
		logger:       logger,
		now:          time.Now,
		redisTimeout: cfg.Cache.RedisTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	memory, err := newMemoryCache(cfg.Cache.Size, cfg.Cache.TTL, s.now)
	if err != nil {
		return nil, err
	}
	s.cache = &tieredCache{memory: memory}

	if s.redisClient != nil {
		if s.redisTimeout <= 0 {
			s.redisTimeout = 500 * time.Millisecond
		}
		s.cache.redis = &redisCache{
			client:  s.redisClient,
			ttl:     memory.ttl,
			timeout: s.redisTimeout,
			logger:  logger,
		}
	}
	return s, nil
}

// SuggestConditions completes input against the local condition vocabulary.
func (s *Service) SuggestConditions(input string) []string {
	return s.conditions.Suggest(input)
}

// IdentifyConditions lists the vocabulary conditions mentioned in text.
func (s *Service) IdentifyConditions(text string) []string {
	return s.conditions.Identify(text).IdentifiedConditions
}

// AnalyzeCondition identifies the condition described in q.
func (s *Service) AnalyzeCondition(ctx context.Context, q domain.ConditionQuery) (*domain.ConditionResult, error) {
	r, err := s.Advise(ctx, q)
	if err != nil {
		return nil, err
	}
	return as[*domain.ConditionResult](r)
}

// SuggestResearchCollaborations proposes collaboration areas for q.
func (s *Service) SuggestResearchCollaborations(ctx context.Context, q domain.ResearchQuery) (*domain.ResearchResult, error) {
	r, err := s.Advise(ctx, q)
	if err != nil {
		return nil, err
	}
	return as[*domain.ResearchResult](r)
}

// SummarizeTrial summarizes the trial described by q.
func (s *Service) SummarizeTrial(ctx context.Context, q domain.TrialSummaryQuery) (*domain.TrialSummaryResult, error) {
	r, err := s.Advise(ctx, q)
	if err != nil {
		return nil, err
	}
	return as[*domain.TrialSummaryResult](r)
}

// Advise answers req. It returns a *domain.ValidationError for invalid input
// and a *domain.GatewayFailure with CallerDone set when ctx ends first. Any
// other failure is answered with a fallback result.
func (s *Service) Advise(ctx context.Context, req domain.AdvisoryRequest) (domain.AdvisoryResult, error) {
	if req == nil {
		return nil, domain.NewValidationError("request", "request is required", nil)
	}

	s.requests.Add(1)
	start := time.Now()
	ev := &telemetry.Event{Kind: req.Kind()}

	if err := req.Validate(); err != nil {
		s.invalid.Add(1)
		ev.Outcome = telemetry.OutcomeInvalid
		s.record(ctx, ev, start)
		return nil, err
	}

	key := CacheKey(req)
	ev.CacheKey = key
	log := s.logger.WithFields(logrus.Fields{"kind": req.Kind(), "cache_key": key})

	if cached, tier, ok := s.cache.get(ctx, key); ok {
		s.cacheHits.Add(1)
		out := cached.Clone()
		out.Meta().Source = domain.SourceCache
		ev.Outcome = telemetry.OutcomeCache
		ev.Degraded = out.Meta().Degraded
		s.record(ctx, ev, start)
		log.WithField("tier", tier).Debug("Advisory cache hit")
		return out, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, s.callerGaveUp(ctx, ev, start, err)
	}

	// The shared call outlives the cancellation of any single waiter.
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.resolve(shared, req, key), nil
	})

	select {
	case <-ctx.Done():
		return nil, s.callerGaveUp(ctx, ev, start, ctx.Err())
	case res := <-ch:
		o := res.Val.(resolution)
		out := o.result.Clone()

		ev.Attempts = o.attempts
		ev.FailureKind = o.failure
		ev.Degraded = out.Meta().Degraded
		if out.Meta().Fallback {
			s.fallbacks.Add(1)
			ev.Outcome = telemetry.OutcomeFallback
		} else {
			s.modelAnswers.Add(1)
			ev.Outcome = telemetry.OutcomeModel
		}
		s.record(ctx, ev, start)

		log.WithFields(logrus.Fields{
			"outcome":    ev.Outcome,
			"degraded":   ev.Degraded,
			"shared":     res.Shared,
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("Advisory request completed")
		return out, nil
	}
}

// resolve runs prompt building, the model call and parsing for one key. It
// never fails: gateway and parse failures turn into the fallback for req.
func (s *Service) resolve(ctx context.Context, req domain.AdvisoryRequest, key string) resolution {
	log := s.logger.WithFields(logrus.Fields{"kind": req.Kind(), "cache_key": key})

	p, err := s.builder.Build(req)
	if err != nil {
		log.WithError(err).Error("Failed to build prompt")
		return resolution{result: fallback(req, s.conditions)}
	}
	if p.Truncated {
		log.Debug("Caller input truncated in prompt")
	}

	resp, err := s.sender.Send(ctx, p)
	if err != nil {
		out := resolution{result: fallback(req, s.conditions)}
		var f *domain.GatewayFailure
		if errors.As(err, &f) {
			out.attempts = f.Attempts
			out.failure = f.Kind
		}
		log.WithField("failure", out.failure).Warn("Model unavailable, serving fallback")
		return out
	}

	result, err := s.parser.Parse(resp.Text, p.Schema)
	if err != nil {
		log.WithError(err).WithField("reply_chars", len(resp.Text)).Warn("Unusable model reply, serving fallback")
		return resolution{result: fallback(req, s.conditions), attempts: resp.Attempts}
	}

	s.cache.set(ctx, key, result)
	return resolution{result: result, attempts: resp.Attempts}
}

func (s *Service) callerGaveUp(ctx context.Context, ev *telemetry.Event, start time.Time, err error) error {
	s.timeouts.Add(1)
	ev.Outcome = telemetry.OutcomeTimeout
	ev.FailureKind = domain.FailureTimeout
	s.record(ctx, ev, start)
	return &domain.GatewayFailure{Kind: domain.FailureTimeout, CallerDone: true, Err: err}
}

func (s *Service) record(ctx context.Context, ev *telemetry.Event, start time.Time) {
	ev.Latency = time.Since(start)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.logger.WithError(err).WithField("kind", ev.Kind).Warn("Failed to record advisory event")
	}
}

// Status returns the current counters.
func (s *Service) Status() Status {
	st := Status{
		Requests:     s.requests.Load(),
		CacheHits:    s.cacheHits.Load(),
		ModelAnswers: s.modelAnswers.Load(),
		Fallbacks:    s.fallbacks.Load(),
		Invalid:      s.invalid.Load(),
		Timeouts:     s.timeouts.Load(),
		CacheEntries: s.cache.memory.len(),
		RedisEnabled: s.cache.redis != nil,
	}
	if r, ok := s.sender.(statsReporter); ok {
		gs := r.Stats()
		st.Gateway = &gs
	}
	return st
}

// Outcomes counts recorded events by outcome. It is empty when the recorder
// keeps no history.
func (s *Service) Outcomes(ctx context.Context) (map[telemetry.Outcome]int64, error) {
	h, ok := s.recorder.(telemetry.History)
	if !ok {
		return map[telemetry.Outcome]int64{}, nil
	}
	counts, err := h.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize advisory events: %w", err)
	}
	return counts, nil
}

// RecentEvents returns up to limit recorded events, newest first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]*telemetry.Event, error) {
	h, ok := s.recorder.(telemetry.History)
	if !ok {
		return nil, nil
	}
	events, err := h.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent advisory events: %w", err)
	}
	return events, nil
}

func as[T domain.AdvisoryResult](r domain.AdvisoryResult) (T, error) {
	out, ok := r.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected %s result type %T", r.Kind(), r)
	}
	return out, nil
}
