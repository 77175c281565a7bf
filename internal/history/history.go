// Package history persists accepted speech results.
//
// Persistence is strictly best-effort: a failed write must never delay or
// suppress the response to the device. Callers log append errors and move
// on.
package history

import (
	"context"
	"time"
)

// Entry is one accepted utterance with its classification. The JSON shape
// is served as-is on the history route.
type Entry struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion"`
	CreatedAt time.Time `json:"created_at"`
}

// Store records speech results.
type Store interface {
	// Append persists one entry. CreatedAt is assigned by the store.
	Append(ctx context.Context, text, emotion string) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Ping reports whether the backing store is reachable. Used by
	// readiness checks.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
