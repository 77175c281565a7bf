package resilience

import (
	"context"

	"heartmirror/internal/history"
)

// HistoryStore wraps a history.Store with a [Breaker]. Once the database has
// failed repeatedly, writes and reads short-circuit with [ErrOpen] instead of
// blocking each utterance on a connection timeout. History is best-effort, so
// callers already treat these errors as non-fatal.
type HistoryStore struct {
	inner   history.Store
	breaker *Breaker
}

// NewHistoryStore wraps inner with a circuit breaker.
func NewHistoryStore(inner history.Store, cfg BreakerConfig) *HistoryStore {
	if cfg.Name == "" {
		cfg.Name = "history"
	}
	return &HistoryStore{
		inner:   inner,
		breaker: NewBreaker(cfg),
	}
}

// Append forwards to the wrapped store through the breaker.
func (h *HistoryStore) Append(ctx context.Context, text, emotion string) error {
	return h.breaker.Execute(func() error {
		return h.inner.Append(ctx, text, emotion)
	})
}

// Recent forwards to the wrapped store through the breaker.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	var entries []history.Entry
	err := h.breaker.Execute(func() error {
		var err error
		entries, err = h.inner.Recent(ctx, limit)
		return err
	})
	return entries, err
}

// Ping forwards to the wrapped store through the breaker, so readiness
// reflects the breaker state as well as the database itself.
func (h *HistoryStore) Ping(ctx context.Context) error {
	return h.breaker.Execute(func() error {
		return h.inner.Ping(ctx)
	})
}

// Close closes the wrapped store directly; shutdown must not be gated on
// breaker state.
func (h *HistoryStore) Close() error {
	return h.inner.Close()
}

// State exposes the breaker state for logging and tests.
func (h *HistoryStore) State() State {
	return h.breaker.State()
}

var _ history.Store = (*HistoryStore)(nil)
