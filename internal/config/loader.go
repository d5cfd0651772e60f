package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the provider names with a built-in adapter.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"deepgram", "assemblyai", "openai", "whisper", "whisper-native"}

// Defaults.
const (
	DefaultHybridThreshold = 300 * time.Millisecond
	DefaultFinalizeTimeout = 3 * time.Second
	DefaultSilenceWindow   = 50 * time.Millisecond
	DefaultRMSThreshold    = 0.01
	DefaultMinSpeechRatio  = 0.05
	DefaultMinLength       = 3
	DefaultMaxTokenShare   = 0.7
	DefaultSampleRate      = 16000
	DefaultHistoryLimit    = 200
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	d := &cfg.Dictation
	if d.Provider == "" && len(cfg.Providers) > 0 {
		d.Provider = cfg.Providers[0].Name
	}
	if d.HybridThreshold == 0 {
		d.HybridThreshold = DefaultHybridThreshold
	}
	if d.FinalizeTimeout == 0 {
		d.FinalizeTimeout = DefaultFinalizeTimeout
	}

	s := &cfg.Filters.Silence
	if s.Window == 0 {
		s.Window = DefaultSilenceWindow
	}
	if s.RMSThreshold == 0 {
		s.RMSThreshold = DefaultRMSThreshold
	}
	if s.MinSpeechRatio == 0 {
		s.MinSpeechRatio = DefaultMinSpeechRatio
	}

	h := &cfg.Filters.Hallucination
	if h.MinLength == 0 {
		h.MinLength = DefaultMinLength
	}
	if h.MaxTokenShare == 0 {
		h.MaxTokenShare = DefaultMaxTokenShare
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = DefaultHistoryLimit
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	if len(cfg.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider is required"))
	}
	seen := make(map[string]int, len(cfg.Providers))
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers[%d]", prefix, p.Name, prev))
		}
		seen[p.Name] = i
		validateProviderName(p.Name)
	}

	// Dictation
	d := cfg.Dictation
	if d.Provider != "" && len(cfg.Providers) > 0 {
		if _, ok := seen[d.Provider]; !ok {
			errs = append(errs, fmt.Errorf("dictation.provider %q is not listed in providers", d.Provider))
		}
	}
	if d.HybridThreshold < 0 {
		errs = append(errs, fmt.Errorf("dictation.hybrid_threshold %s must be positive", d.HybridThreshold))
	}
	if d.FinalizeTimeout < 0 {
		errs = append(errs, fmt.Errorf("dictation.finalize_timeout %s must be positive", d.FinalizeTimeout))
	}

	// Filters
	s := cfg.Filters.Silence
	if s.Window < 0 {
		errs = append(errs, fmt.Errorf("filters.silence.window %s must be positive", s.Window))
	}
	if s.RMSThreshold < 0 || s.RMSThreshold > 1 {
		errs = append(errs, fmt.Errorf("filters.silence.rms_threshold %.3f is out of range (0, 1]", s.RMSThreshold))
	}
	if s.MinSpeechRatio < 0 || s.MinSpeechRatio > 1 {
		errs = append(errs, fmt.Errorf("filters.silence.min_speech_ratio %.3f is out of range (0, 1]", s.MinSpeechRatio))
	}
	h := cfg.Filters.Hallucination
	if h.MinLength < 0 {
		errs = append(errs, fmt.Errorf("filters.hallucination.min_length %d must not be negative", h.MinLength))
	}
	if h.MaxTokenShare < 0 || h.MaxTokenShare > 1 {
		errs = append(errs, fmt.Errorf("filters.hallucination.max_token_share %.2f is out of range (0, 1]", h.MaxTokenShare))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.History.Limit < 0 {
		errs = append(errs, fmt.Errorf("history.limit %d must not be negative", cfg.History.Limit))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is not one of
// [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
