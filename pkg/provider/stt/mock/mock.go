// Package mock provides a test double for the stt.Recognizer interface.
//
// Use Recognizer in unit tests to feed controlled transcriptions without a
// loaded model and to inspect which sample buffers were delivered.
//
// Example:
//
//	r := &mock.Recognizer{Text: "你好"}
//	text, err := r.Recognize(ctx, samples)
package mock

import (
	"context"
	"sync"

	"heartmirror/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Samples is a copy of the sample buffer passed to Recognize.
	Samples []float32
}

// Recognizer is a mock implementation of stt.Recognizer.
// The zero value transcribes everything to the empty string; set Text (or
// Sequence for per-call texts) to control replies, and Err to inject
// failures.
type Recognizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Text is returned by Recognize when Sequence is exhausted or empty.
	Text string

	// Sequence, when non-empty, supplies the texts for successive Recognize
	// calls in order. After it runs out, Text is used.
	Sequence []string

	// Err, if non-nil, is returned by every Recognize call.
	Err error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records (read after test) ---

	// RecognizeCalls records every invocation of Recognize in order.
	RecognizeCalls []RecognizeCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Recognize records the call and returns the next scripted text, Err.
func (r *Recognizer) Recognize(ctx context.Context, samples []float32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	r.RecognizeCalls = append(r.RecognizeCalls, RecognizeCall{Ctx: ctx, Samples: cp})
	if r.Err != nil {
		return "", r.Err
	}
	if len(r.Sequence) > 0 {
		t := r.Sequence[0]
		r.Sequence = r.Sequence[1:]
		return t, nil
	}
	return r.Text, nil
}

// Close records the call and returns CloseErr.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCallCount++
	return r.CloseErr
}

// RecognizeCallCount returns the number of Recognize calls. Thread-safe.
func (r *Recognizer) RecognizeCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.RecognizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (r *Recognizer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RecognizeCalls = nil
	r.CloseCallCount = 0
}

// Ensure Recognizer implements stt.Recognizer at compile time.
var _ stt.Recognizer = (*Recognizer)(nil)
