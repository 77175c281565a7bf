// Package whisper provides a speech recognizer backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"heartmirror/pkg/provider/stt"
)

// Defaults tuned for short Mandarin utterances from the device microphone.
const (
	// DefaultLanguage is the transcription language code.
	DefaultLanguage = "zh"

	// DefaultInitialPrompt biases the decoder toward Simplified Chinese
	// output instead of Traditional.
	DefaultInitialPrompt = "简体中文"

	// DefaultThreads is the inference thread count.
	DefaultThreads = 4

	// DefaultTimeout bounds one inference run. whisper.cpp cannot be
	// interrupted mid-run, so on expiry the result is discarded while the
	// run finishes in the background.
	DefaultTimeout = 30 * time.Second
)

// Compile-time assertion that Recognizer satisfies stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

// Recognizer implements stt.Recognizer using whisper.cpp Go bindings (CGO).
// The model is loaded once at construction and shared across all calls;
// each Recognize call creates its own whisper context, so concurrent calls
// do not interfere.
type Recognizer struct {
	model         whisperlib.Model
	language      string
	initialPrompt string
	threads       uint
	timeout       time.Duration
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the transcription language code (e.g., "zh", "en").
// Defaults to DefaultLanguage.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithInitialPrompt sets the decoder priming prompt. An empty string
// disables priming. Defaults to DefaultInitialPrompt.
func WithInitialPrompt(prompt string) Option {
	return func(r *Recognizer) { r.initialPrompt = prompt }
}

// WithThreads sets the inference thread count. Values below one keep
// DefaultThreads.
func WithThreads(n int) Option {
	return func(r *Recognizer) {
		if n >= 1 {
			r.threads = uint(n)
		}
	}
}

// WithTimeout sets the per-inference deadline. Zero or negative values keep
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Recognizer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New creates a Recognizer that loads the whisper.cpp model from the given
// file path. The caller must call Close when the recognizer is no longer
// needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:         model,
		language:      DefaultLanguage,
		initialPrompt: DefaultInitialPrompt,
		threads:       DefaultThreads,
		timeout:       DefaultTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Recognize implements stt.Recognizer. Inference runs in its own goroutine
// so the context deadline is honoured; whisper.cpp itself cannot be
// interrupted, so a timed-out run completes in the background and its
// result is dropped.
func (r *Recognizer) Recognize(ctx context.Context, samples []float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		text, err := r.infer(samples)
		resultCh <- result{text: text, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("whisper: recognize: %w", res.err)
		}
		return res.text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("whisper: recognize: %w", ctx.Err())
	}
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text. Each context is NOT thread-safe, but the model
// can be shared across goroutines.
func (r *Recognizer) infer(samples []float32) (string, error) {
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	if err := wctx.SetLanguage(r.language); err != nil {
		return "", fmt.Errorf("set language %q: %w", r.language, err)
	}
	if r.initialPrompt != "" {
		wctx.SetInitialPrompt(r.initialPrompt)
	}
	wctx.SetThreads(r.threads)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
