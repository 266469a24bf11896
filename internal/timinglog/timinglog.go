// Package timinglog persists response timing records to PostgreSQL.
//
// The simulator keeps a bounded in-memory timing window per session; this
// package is the optional durable sink behind it, so that latency profiles
// survive restarts and can be queried across sessions.
//
// Usage:
//
//	store, err := timinglog.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	client := sim.NewClient(sim.WithTimingSink(store))
package timinglog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parrotlabs/parrot/pkg/sim"
)

var _ sim.TimingSink = (*Store)(nil)

const ddlResponseTimings = `
CREATE TABLE IF NOT EXISTS response_timings (
    id           BIGSERIAL    PRIMARY KEY,
    response_id  TEXT         NOT NULL,
    template_key TEXT         NOT NULL DEFAULT '',
    duration_ns  BIGINT       NOT NULL DEFAULT 0,
    completed_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_response_timings_completed_at
    ON response_timings (completed_at);

CREATE INDEX IF NOT EXISTS idx_response_timings_template_key
    ON response_timings (template_key);
`

// Store is a PostgreSQL-backed [sim.TimingSink]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, and runs [Migrate] to ensure the timing table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("timinglog: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("timinglog: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("timinglog: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Migrate creates the response_timings table and its indexes if missing.
// Idempotent; safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlResponseTimings); err != nil {
		return fmt.Errorf("timinglog: apply ddl: %w", err)
	}
	return nil
}

// Append implements [sim.TimingSink]. It inserts one timing record.
func (s *Store) Append(ctx context.Context, t sim.ResponseTiming) error {
	const q = `
		INSERT INTO response_timings
		    (response_id, template_key, duration_ns, completed_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, q,
		t.ResponseID,
		t.TemplateKey,
		t.Duration.Nanoseconds(),
		t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("timinglog: append: %w", err)
	}
	return nil
}

// Recent returns up to limit timing records ordered most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]sim.ResponseTiming, error) {
	const q = `
		SELECT response_id, template_key, duration_ns, completed_at
		FROM   response_timings
		ORDER  BY completed_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("timinglog: recent: %w", err)
	}
	return collectTimings(rows)
}

// ByTemplate returns up to limit timing records for one template key,
// ordered most recent first.
func (s *Store) ByTemplate(ctx context.Context, key string, limit int) ([]sim.ResponseTiming, error) {
	const q = `
		SELECT response_id, template_key, duration_ns, completed_at
		FROM   response_timings
		WHERE  template_key = $1
		ORDER  BY completed_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, key, limit)
	if err != nil {
		return nil, fmt.Errorf("timinglog: by template: %w", err)
	}
	return collectTimings(rows)
}

// Ping verifies database connectivity. Suitable as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("timinglog: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// collectTimings scans pgx rows into timing records.
func collectTimings(rows pgx.Rows) ([]sim.ResponseTiming, error) {
	defer rows.Close()

	var out []sim.ResponseTiming
	for rows.Next() {
		var t sim.ResponseTiming
		var durationNS int64
		if err := rows.Scan(&t.ResponseID, &t.TemplateKey, &durationNS, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("timinglog: scan row: %w", err)
		}
		t.Duration = time.Duration(durationNS)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timinglog: iterate rows: %w", err)
	}
	return out, nil
}
