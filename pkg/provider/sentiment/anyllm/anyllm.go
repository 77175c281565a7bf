// Package anyllm provides a sentiment classifier backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and
// more. Use it when the classification model lives behind a hosted API
// rather than a plain local Ollama server.
//
// Usage:
//
//	c, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	c, err := anyllm.New("groq", "llama-3.1-8b-instant")
package anyllm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"heartmirror/pkg/provider/sentiment"
)

// Ensure Classifier implements the sentiment.Classifier interface at compile time.
var _ sentiment.Classifier = (*Classifier)(nil)

// Classifier implements sentiment.Classifier by wrapping
// github.com/mozilla-ai/any-llm-go.
type Classifier struct {
	backend anyllmlib.Provider
	model   string
	log     *slog.Logger
}

// New creates a new Classifier backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "deepseek", "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). If no API key option is provided, the provider
// falls back to the relevant environment variable (e.g., OPENAI_API_KEY).
func New(providerName string, model string, opts ...anyllmlib.Option) (*Classifier, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm sentiment: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm sentiment: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm sentiment: create %q backend: %w", providerName, err)
	}

	return &Classifier{backend: backend, model: model, log: slog.Default()}, nil
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// systemPrompt instructs the model to answer with exactly one label.
func systemPrompt() string {
	names := make([]string, 0, len(sentiment.Labels()))
	for _, l := range sentiment.Labels() {
		names = append(names, string(l))
	}
	return "You classify the sentiment of a sentence. Reply with exactly one word from this list: " +
		strings.Join(names, ", ") + ". No punctuation, no explanation."
}

// Classify implements sentiment.Classifier. Backend failures of any kind
// are logged at warn level and collapse to sentiment.LabelNeutral.
func (c *Classifier) Classify(ctx context.Context, text string) sentiment.Label {
	reply, err := c.complete(ctx, text)
	if err != nil {
		c.log.Warn("sentiment classification failed, falling back to neutral",
			"model", c.model, "error", err)
		return sentiment.LabelNeutral
	}
	return sentiment.ParseLabel(reply)
}

// Check implements sentiment.Classifier by issuing a throwaway completion.
func (c *Classifier) Check(ctx context.Context) error {
	if _, err := c.complete(ctx, "ok"); err != nil {
		return fmt.Errorf("anyllm sentiment: check: %w", err)
	}
	return nil
}

func (c *Classifier) complete(ctx context.Context, text string) (string, error) {
	params := anyllmlib.CompletionParams{
		Model: c.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt()},
			{Role: anyllmlib.RoleUser, Content: text},
		},
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
