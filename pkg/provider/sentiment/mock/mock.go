// Package mock provides a test double for the sentiment.Classifier interface.
//
// Use Classifier in unit tests to feed controlled labels without a live
// model backend and to verify which texts were classified. All fields are
// safe to set before calling any method; mutating them during a concurrent
// call is the caller's responsibility.
//
// Example:
//
//	c := &mock.Classifier{Label: sentiment.LabelJoy}
//	got := c.Classify(ctx, "what a day")
package mock

import (
	"context"
	"sync"

	"heartmirror/pkg/provider/sentiment"
)

// ClassifyCall records a single invocation of Classify.
type ClassifyCall struct {
	// Ctx is the context passed to Classify.
	Ctx context.Context
	// Text is the utterance text passed to Classify.
	Text string
}

// Classifier is a mock implementation of sentiment.Classifier.
// The zero value classifies everything as the empty label; set Label (or
// Sequence for per-call labels) to control replies.
type Classifier struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Label is returned by Classify when Sequence is exhausted or empty.
	Label sentiment.Label

	// Sequence, when non-empty, supplies the labels for successive Classify
	// calls in order. After it runs out, Label is used.
	Sequence []sentiment.Label

	// CheckErr, if non-nil, is returned by Check.
	CheckErr error

	// --- Call records (read after test) ---

	// ClassifyCalls records every invocation of Classify in order.
	ClassifyCalls []ClassifyCall

	// CheckCallCount is the number of times Check was called.
	CheckCallCount int
}

// Classify records the call and returns the next scripted label.
func (c *Classifier) Classify(ctx context.Context, text string) sentiment.Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCalls = append(c.ClassifyCalls, ClassifyCall{Ctx: ctx, Text: text})
	if len(c.Sequence) > 0 {
		l := c.Sequence[0]
		c.Sequence = c.Sequence[1:]
		return l
	}
	return c.Label
}

// Check records the call and returns CheckErr.
func (c *Classifier) Check(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CheckCallCount++
	return c.CheckErr
}

// ClassifyCallCount returns the number of Classify calls. Thread-safe.
func (c *Classifier) ClassifyCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ClassifyCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClassifyCalls = nil
	c.CheckCallCount = 0
}

// Ensure Classifier implements sentiment.Classifier at compile time.
var _ sentiment.Classifier = (*Classifier)(nil)
