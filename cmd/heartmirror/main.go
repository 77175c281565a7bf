// Command heartmirror is the main entry point for the Heartmirror reaction
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"heartmirror/internal/app"
	"heartmirror/internal/config"
	"heartmirror/internal/observe"
	"heartmirror/pkg/provider/sentiment"
	"heartmirror/pkg/provider/sentiment/anyllm"
	ollamasentiment "heartmirror/pkg/provider/sentiment/ollama"
	"heartmirror/pkg/provider/stt"
	"heartmirror/pkg/provider/stt/whisper"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "heartmirror: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "heartmirror: %v\n", err)
		}
		return 1
	}

	// The level variable stays live so config reloads can adjust it.
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	slog.Info("heartmirror starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "heartmirror",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// A dead sentiment backend degrades to neutral replies, so an initial
	// failure is worth a warning but never fatal.
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := providers.Sentiment.Check(checkCtx); err != nil {
		slog.Warn("sentiment backend unreachable, replies degrade to neutral", "err", err)
	}
	cancel()

	application, err := app.New(ctx, cfg, providers, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if !d.Any() {
			slog.Info("config changed, but only restart-bound settings differ")
			return
		}
		if d.LogLevelChanged {
			lvl.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		application.ApplyConfig(d, new)
	})
	if err != nil {
		slog.Warn("config watcher unavailable, hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// whisper-native loads a ggml model in-process via whisper.cpp.
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if prompt := optString(entry.Options, "initial_prompt"); prompt != "" {
			opts = append(opts, whisper.WithInitialPrompt(prompt))
		}
		if threads := optInt(entry.Options, "threads"); threads > 0 {
			opts = append(opts, whisper.WithThreads(threads))
		}
		if secs := optInt(entry.Options, "timeout_seconds"); secs > 0 {
			opts = append(opts, whisper.WithTimeout(time.Duration(secs)*time.Second))
		}
		return whisper.New(modelPath, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterSentiment("ollama", func(entry config.ProviderEntry) (sentiment.Classifier, error) {
		return ollamasentiment.New(entry.BaseURL, entry.Model)
	})

	// The hosted and llama.cpp-style backends all share the same pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterSentiment(providerName, func(entry config.ProviderEntry) (sentiment.Classifier, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// Both slots are mandatory: without a recognizer or classifier there is no
// pipeline to run.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	name := cfg.Providers.STT.Name
	if name == "" {
		return nil, errors.New("providers.stt.name is required")
	}
	rec, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", name, err)
	}
	ps.STT = rec
	slog.Info("provider created", "kind", "stt", "name", name, "model", cfg.Providers.STT.Model)

	name = cfg.Providers.Sentiment.Name
	if name == "" {
		return nil, errors.New("providers.sentiment.name is required")
	}
	cls, err := reg.CreateSentiment(cfg.Providers.Sentiment)
	if err != nil {
		return nil, fmt.Errorf("create sentiment provider %q: %w", name, err)
	}
	ps.Sentiment = cls
	slog.Info("provider created", "kind", "sentiment", "name", name, "model", cfg.Providers.Sentiment.Model)

	return ps, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optInt extracts an int value from a provider Options map. YAML decodes
// whole numbers as int, so only that case is handled.
func optInt(opts map[string]any, key string) int {
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}
