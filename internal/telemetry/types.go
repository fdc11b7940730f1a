// Package telemetry records the outcome of every advisory call. Events carry
// request kinds, cache key hashes and outcomes only, never caller text.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/curalink-advisory/internal/domain"
)

// Outcome describes how an advisory call was answered.
type Outcome string

const (
	OutcomeModel    Outcome = "model"
	OutcomeCache    Outcome = "cache"
	OutcomeFallback Outcome = "fallback"
	OutcomeInvalid  Outcome = "invalid"
	// OutcomeTimeout means the caller gave up before an answer was ready.
	OutcomeTimeout  Outcome = "timeout"
)

// Event is one recorded advisory call.
type Event struct {
	ID          uuid.UUID          `json:"id"`
	Kind        domain.RequestKind `json:"kind"`
	CacheKey    string             `json:"cache_key,omitempty"`
	Outcome     Outcome            `json:"outcome"`
	Degraded    bool               `json:"degraded"`
	FailureKind domain.FailureKind `json:"failure_kind,omitempty"`
	Attempts    int                `json:"attempts"`
	Latency     time.Duration      `json:"latency"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Recorder accepts advisory events.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
}

// History is the query side of a Store.
type History interface {
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]*Event, error)

	// Summary counts recorded events by outcome.
	Summary(ctx context.Context) (map[Outcome]int64, error)
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder
	History

	Close() error
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Event) error { return nil }

func (NopRecorder) Recent(context.Context, int) ([]*Event, error) { return nil, nil }

func (NopRecorder) Summary(context.Context) (map[Outcome]int64, error) {
	return map[Outcome]int64{}, nil
}

func (NopRecorder) Close() error { return nil }

// Open returns the store selected by cfg.Driver. PostgreSQL stores are
// migrated to the latest schema first.
func Open(cfg domain.TelemetryConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return NopRecorder{}, nil
	case "sqlite":
		return NewSQLiteStore(cfg.DSN)
	case "postgres":
		if err := migrateUp(cfg.DSN, logger); err != nil {
			return nil, err
		}
		return NewPostgresStoreFromURL(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown telemetry driver %q", cfg.Driver)
	}
}

// prepare fills the ID and timestamp of an event that lacks them.
func prepare(event *Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*Event, error) {
	var (
		ev        Event
		id        string
		kind      string
		outcome   string
		failure   string
		latencyMS int64
	)
	if err := s.Scan(&id, &kind, &ev.CacheKey, &outcome, &ev.Degraded, &failure,
		&ev.Attempts, &latencyMS, &ev.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", id, err)
	}
	ev.ID = parsed
	ev.Kind = domain.RequestKind(kind)
	ev.Outcome = Outcome(outcome)
	ev.FailureKind = domain.FailureKind(failure)
	ev.Latency = time.Duration(latencyMS) * time.Millisecond
	return &ev, nil
}
