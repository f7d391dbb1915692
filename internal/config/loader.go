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

// ValidSTTNames lists the speech-to-text providers known to the CLI.
// Used by [Validate] to warn about unrecognised provider names.
var ValidSTTNames = []string{"deepgram", "whisper", "whisper-native", "openai", "mock"}

// ValidVADNames lists the built-in voice activity detectors.
var ValidVADNames = []string{"energy"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults, and
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

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Providers
	validateProviderName(cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName(fb.Name)
	}
	if v := cfg.Providers.VAD.Name; v != "" && !slices.Contains(ValidVADNames, v) {
		slog.Warn("config: unknown vad provider name", "name", v, "known", ValidVADNames)
	}
	if cfg.Providers.STT.Name == "" && len(cfg.Providers.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.fallbacks requires providers.stt to be set"))
	}

	// Prompter
	p := cfg.Prompter
	if p.Mode != "" && !p.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("prompter.mode %q is invalid; valid values: word_tracking, classic, voice_activated", p.Mode))
	}
	if p.ScrollSpeed < 0 {
		errs = append(errs, fmt.Errorf("prompter.scroll_speed %.2f must not be negative", p.ScrollSpeed))
	}
	if p.VoiceHold < 0 {
		errs = append(errs, fmt.Errorf("prompter.voice_hold %s must not be negative", p.VoiceHold))
	}
	if p.KeywordLimit < 0 {
		errs = append(errs, fmt.Errorf("prompter.keyword_limit %d must not be negative", p.KeywordLimit))
	}

	// Alignment
	a := cfg.Alignment
	if a.Lookahead < 0 {
		errs = append(errs, fmt.Errorf("alignment.lookahead %d must not be negative", a.Lookahead))
	}
	if a.PhoneticThreshold < 0 || a.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("alignment.phonetic_threshold %.2f is out of range [0, 1]", a.PhoneticThreshold))
	}
	if a.MaxUtteranceRunes < 0 {
		errs = append(errs, fmt.Errorf("alignment.max_utterance_runes %d must not be negative", a.MaxUtteranceRunes))
	}

	// Recognition
	r := cfg.Recognition
	if r.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("recognition.max_retries %d must not be negative", r.MaxRetries))
	}
	if r.InitialBackoff < 0 || r.MaxBackoff < 0 {
		errs = append(errs, errors.New("recognition backoff durations must not be negative"))
	}
	if r.MaxBackoff > 0 && r.InitialBackoff > r.MaxBackoff {
		errs = append(errs, fmt.Errorf("recognition.initial_backoff %s exceeds recognition.max_backoff %s", r.InitialBackoff, r.MaxBackoff))
	}

	// Audio
	au := cfg.Audio
	for name, v := range map[string]int{
		"audio.sample_rate":       au.SampleRate,
		"audio.input_sample_rate": au.InputSampleRate,
	} {
		if v < 0 || v > 192000 {
			errs = append(errs, fmt.Errorf("%s %d is out of range [0, 192000]", name, v))
		}
	}
	for name, v := range map[string]int{
		"audio.channels":       au.Channels,
		"audio.input_channels": au.InputChannels,
	} {
		if v < 0 || v > 2 {
			errs = append(errs, fmt.Errorf("%s %d is out of range [0, 2]", name, v))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// [ValidSTTNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidSTTNames, name) {
		return
	}
	slog.Warn("unknown stt provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidSTTNames,
	)
}
