// Package postgres implements history.Store on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"heartmirror/internal/history"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// schema creates the speech results table. Idempotent, run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS speech_results (
    id         BIGSERIAL PRIMARY KEY,
    text       TEXT        NOT NULL,
    emotion    TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store is a PostgreSQL-backed history store. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and ensures the speech_results table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, text, emotion string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO speech_results (text, emotion) VALUES ($1, $2)`,
		text, emotion)
	if err != nil {
		return fmt.Errorf("history store: append: %w", err)
	}
	return nil
}

// Recent implements history.Store.
func (s *Store) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, text, emotion, created_at
		   FROM speech_results
		  ORDER BY created_at DESC, id DESC
		  LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("history store: recent: %w", err)
	}
	defer rows.Close()

	var entries []history.Entry
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(&e.ID, &e.Text, &e.Emotion, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history store: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history store: iterate entries: %w", err)
	}
	return entries, nil
}

// Ping implements history.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("history store: ping: %w", err)
	}
	return nil
}

// Close implements history.Store by releasing all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
