package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps events in a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at dbPath and its schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite telemetry requires a database path")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets concurrent requests record while a reader runs Recent.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS advisory_events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		cache_key TEXT DEFAULT '',
		outcome TEXT NOT NULL,
		degraded INTEGER NOT NULL DEFAULT 0,
		failure_kind TEXT DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_created_at ON advisory_events(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_outcome ON advisory_events(outcome);
	`

	_, err := db.Exec(schema)
	return err
}

// Record inserts event, assigning an ID and timestamp when they are unset.
func (s *SQLiteStore) Record(ctx context.Context, event *Event) error {
	prepare(event)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO advisory_events (
			id, kind, cache_key, outcome, degraded,
			failure_kind, attempts, latency_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, cache_key, outcome, degraded,
			failure_kind, attempts, latency_ms, created_at
		FROM advisory_events
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) Summary(ctx context.Context) (map[Outcome]int64, error) {
	return summarize(ctx, s.db)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func summarize(ctx context.Context, db *sql.DB) (map[Outcome]int64, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT outcome, COUNT(*) FROM advisory_events GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to summarize events: %w", err)
	}
	defer rows.Close()

	counts := map[Outcome]int64{}
	for rows.Next() {
		var (
			outcome string
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
