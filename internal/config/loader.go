package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper-native"},
	"sentiment": {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("sentiment", cfg.Providers.Sentiment.Name)

	// VAD. Zero values mean "use the default", so only set values are checked.
	if cfg.VAD.StartThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.start_threshold %.1f must not be negative", cfg.VAD.StartThreshold))
	}
	if cfg.VAD.EndThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.end_threshold %.1f must not be negative", cfg.VAD.EndThreshold))
	}
	if cfg.VAD.StartThreshold > 0 && cfg.VAD.EndThreshold > 0 && cfg.VAD.EndThreshold >= cfg.VAD.StartThreshold {
		errs = append(errs, fmt.Errorf("vad.end_threshold %.1f must be below vad.start_threshold %.1f to provide hysteresis",
			cfg.VAD.EndThreshold, cfg.VAD.StartThreshold))
	}
	if cfg.VAD.MaxSilenceFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.max_silence_frames %d must not be negative", cfg.VAD.MaxSilenceFrames))
	}
	if cfg.VAD.MinUtteranceSamples < 0 {
		errs = append(errs, fmt.Errorf("vad.min_utterance_samples %d must not be negative", cfg.VAD.MinUtteranceSamples))
	}
	if cfg.VAD.MaxBufferSamples > 0 && cfg.VAD.MinUtteranceSamples > cfg.VAD.MaxBufferSamples {
		errs = append(errs, fmt.Errorf("vad.min_utterance_samples %d exceeds vad.max_buffer_samples %d",
			cfg.VAD.MinUtteranceSamples, cfg.VAD.MaxBufferSamples))
	}

	// Filter
	if cfg.Filter.MaxDistance < 0 {
		errs = append(errs, fmt.Errorf("filter.max_distance %d must not be negative", cfg.Filter.MaxDistance))
	}

	// History availability
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; speech results will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
