package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL opens a pool for databaseURL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Record inserts event, assigning an ID and timestamp when they are unset.
func (s *PostgresStore) Record(ctx context.Context, event *Event) error {
	prepare(event)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advisory_events (
			id, kind, cache_key, outcome, degraded,
			failure_kind, attempts, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.ID.String(),
		string(event.Kind),
		event.CacheKey,
		string(event.Outcome),
		event.Degraded,
		string(event.FailureKind),
		event.Attempts,
		event.Latency.Milliseconds(),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, cache_key, outcome, degraded,
			failure_kind, attempts, latency_ms, created_at
		FROM advisory_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var result []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

// Summary counts events by outcome.
func (s *PostgresStore) Summary(ctx context.Context) (map[Outcome]int64, error) {
	return summarize(ctx, s.db)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
