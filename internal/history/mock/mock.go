// Package mock provides a test double for the history.Store interface.
package mock

import (
	"context"
	"sync"

	"heartmirror/internal/history"
)

// AppendCall records a single invocation of Append.
type AppendCall struct {
	Text    string
	Emotion string
}

// Store is a mock implementation of history.Store. The zero value accepts
// every write and returns no entries; set the Err fields to inject
// failures.
type Store struct {
	mu sync.Mutex

	// AppendErr, if non-nil, is returned by every Append call.
	AppendErr error

	// Entries is returned by Recent (up to the requested limit).
	Entries []history.Entry

	// RecentErr, if non-nil, is returned by Recent.
	RecentErr error

	// PingErr, if non-nil, is returned by Ping.
	PingErr error

	// AppendCalls records every invocation of Append in order.
	AppendCalls []AppendCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Append records the call and returns AppendErr.
func (s *Store) Append(_ context.Context, text, emotion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AppendCalls = append(s.AppendCalls, AppendCall{Text: text, Emotion: emotion})
	return s.AppendErr
}

// Recent returns up to limit configured entries, RecentErr.
func (s *Store) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	n := min(limit, len(s.Entries))
	out := make([]history.Entry, n)
	copy(out, s.Entries[:n])
	return out, nil
}

// Ping returns PingErr.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PingErr
}

// Close records the call.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return nil
}

// AppendCallCount returns the number of Append calls. Thread-safe.
func (s *Store) AppendCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.AppendCalls)
}

// Ensure Store implements history.Store at compile time.
var _ history.Store = (*Store)(nil)
