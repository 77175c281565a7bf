// Package ollama provides a sentiment classifier backed by a local Ollama
// server.
//
// Ollama (https://ollama.com) hosts local large language models. This
// package uses the native /api/generate endpoint with a single-word prompt
// to classify utterance text, which keeps small instruct models such as
// qwen2.5:1.5b fast enough for interactive use.
//
// Example usage:
//
//	c, err := ollama.New("", "") // http://127.0.0.1:11434, qwen2.5:1.5b
//	if err != nil {
//	    log.Fatal(err)
//	}
//	label := c.Classify(ctx, "今天真开心")
//
// Only standard library packages are used — no additional dependencies are
// required beyond Go's net/http and encoding/json.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"heartmirror/pkg/provider/sentiment"
)

// DefaultBaseURL is the default base URL for a locally running Ollama
// instance.
const DefaultBaseURL = "http://127.0.0.1:11434"

// DefaultModel is the model used when none is configured. A small instruct
// model keeps single-word classification latency low on CPU-only hosts.
const DefaultModel = "qwen2.5:1.5b"

// DefaultClassifyTimeout bounds one classification request. The device is
// waiting for its reaction, so a slow model reply is worth less than a
// prompt neutral one.
const DefaultClassifyTimeout = 5 * time.Second

// DefaultCheckTimeout bounds the startup connectivity probe, which may pay
// for a cold model load.
const DefaultCheckTimeout = 10 * time.Second

// Ensure Classifier implements the sentiment.Classifier interface at compile time.
var _ sentiment.Classifier = (*Classifier)(nil)

// Classifier implements sentiment.Classifier using a local Ollama server.
//
// Classifier is safe for concurrent use.
type Classifier struct {
	baseURL         string
	model           string
	httpClient      *http.Client
	classifyTimeout time.Duration
	checkTimeout    time.Duration
	log             *slog.Logger
}

// config holds optional configuration collected from functional options.
type config struct {
	classifyTimeout time.Duration
	checkTimeout    time.Duration
	logger          *slog.Logger
}

// Option is a functional option for Classifier.
type Option func(*config)

// WithClassifyTimeout overrides the per-classification deadline. Zero or
// negative values keep DefaultClassifyTimeout.
func WithClassifyTimeout(d time.Duration) Option {
	return func(c *config) {
		c.classifyTimeout = d
	}
}

// WithCheckTimeout overrides the connectivity-probe deadline. Zero or
// negative values keep DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *config) {
		c.checkTimeout = d
	}
}

// WithLogger sets the logger used to report swallowed classification
// failures. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New constructs a new Ollama Classifier.
//
// baseURL is the base URL of the Ollama server. If empty, DefaultBaseURL is
// used. A trailing slash is stripped automatically.
//
// model is the Ollama model name. If empty, DefaultModel is used.
func New(baseURL string, model string, opts ...Option) (*Classifier, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{
		classifyTimeout: DefaultClassifyTimeout,
		checkTimeout:    DefaultCheckTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.classifyTimeout <= 0 {
		cfg.classifyTimeout = DefaultClassifyTimeout
	}
	if cfg.checkTimeout <= 0 {
		cfg.checkTimeout = DefaultCheckTimeout
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Classifier{
		baseURL:         baseURL,
		model:           model,
		httpClient:      &http.Client{},
		classifyTimeout: cfg.classifyTimeout,
		checkTimeout:    cfg.checkTimeout,
		log:             cfg.logger,
	}, nil
}

// generateRequest is the JSON request body sent to Ollama's /api/generate
// endpoint.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the JSON response body returned by Ollama's
// /api/generate endpoint. Only the reply text is of interest.
type generateResponse struct {
	Response string `json:"response"`
}

// Classify implements sentiment.Classifier. Every failure path — transport
// error, non-200 status, undecodable body, deadline expiry — is logged at
// warn level and collapses to sentiment.LabelNeutral.
func (c *Classifier) Classify(ctx context.Context, text string) sentiment.Label {
	ctx, cancel := context.WithTimeout(ctx, c.classifyTimeout)
	defer cancel()

	reply, err := c.generate(ctx, classifyPrompt(text))
	if err != nil {
		c.log.Warn("sentiment classification failed, falling back to neutral",
			"model", c.model, "error", err)
		return sentiment.LabelNeutral
	}
	return sentiment.ParseLabel(reply)
}

// Check implements sentiment.Classifier by issuing a throwaway generation
// against the configured model. A successful round trip proves both that
// the server is reachable and that the model is loadable.
func (c *Classifier) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	if _, err := c.generate(ctx, "Reply with the single word: neutral"); err != nil {
		return fmt.Errorf("ollama sentiment: check: %w", err)
	}
	return nil
}

// generate is the internal helper that sends a POST /api/generate request
// to the Ollama server and returns the raw reply text.
//
// It respects context cancellation via http.NewRequestWithContext.
func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return result.Response, nil
}

// classifyPrompt builds the single-word classification prompt for text.
func classifyPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Analyze the sentiment of the following sentence. ")
	sb.WriteString("ONLY output ONE word, strictly from this list: ")
	for i, l := range sentiment.Labels() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(l))
	}
	sb.WriteString(".\nSentence: ")
	sb.WriteString(text)
	return sb.String()
}
