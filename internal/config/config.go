// Package config provides the configuration schema, loader, watcher, and
// provider registry for the teleprompt voice follower.
//
// A configuration file is YAML. All sections are optional; [LoadFromReader]
// fills unset values from the defaults below before validating.
package config

import "time"

// LogLevel is the minimum log severity emitted by the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler used by the CLI.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Mode selects how the prompter advances through the script.
type Mode string

const (
	// ModeWordTracking advances the offset from speech alignment.
	ModeWordTracking Mode = "word_tracking"

	// ModeClassic scrolls at a constant speed regardless of speech.
	ModeClassic Mode = "classic"

	// ModeVoiceActivated scrolls at a constant speed, but only while the
	// speaker is talking.
	ModeVoiceActivated Mode = "voice_activated"
)

// IsValid reports whether m is a recognised prompter mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeWordTracking, ModeClassic, ModeVoiceActivated:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultScrollSpeed       = 15.0
	DefaultVoiceHold         = 800 * time.Millisecond
	DefaultLanguage          = "en-US"
	DefaultKeywordLimit      = 50
	DefaultKeywordBoost      = 1.5
	DefaultLookahead         = 3
	DefaultPhoneticThreshold = 0.80
	DefaultMaxUtteranceRunes = 1000
	DefaultMaxRetries        = 5
	DefaultInitialBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultSampleRate        = 16000
	DefaultChannels          = 1
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Prompter    PrompterConfig    `yaml:"prompter"`
	Alignment   AlignmentConfig   `yaml:"alignment"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Audio       AudioConfig       `yaml:"audio"`
}

// ServerConfig holds HTTP listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the HTTP surface (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls log verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat is "text" (default) or "json".
	LogFormat LogFormat `yaml:"log_format"`
}

// ProvidersConfig selects the speech-to-text provider.
type ProvidersConfig struct {
	// STT is the primary recogniser.
	STT ProviderEntry `yaml:"stt"`

	// Fallbacks are tried in order when the primary's circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// VAD is the voice activity detector that keeps voice-activated
	// scrolling going while the reader speaks. Options: frame_ms,
	// speech_threshold, silence_threshold.
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block for any named provider.
type ProviderEntry struct {
	// Name is the registered provider name (e.g., "deepgram", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication credential. Leave empty for local providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a provider-specific model (e.g., "nova-3", "base.en").
	Model string `yaml:"model"`

	// Options holds provider-specific settings not covered above.
	Options map[string]any `yaml:"options"`
}

// PrompterConfig controls scrolling behaviour. Hot-reloadable.
type PrompterConfig struct {
	Mode Mode `yaml:"mode"`

	// ScrollSpeed is the constant scroll rate in runes per second used by the
	// classic and voice-activated modes.
	ScrollSpeed float64 `yaml:"scroll_speed"`

	// VoiceHold is how long voice-activated scrolling continues after the
	// last transcript event.
	VoiceHold time.Duration `yaml:"voice_hold"`

	// Language is the BCP-47 tag passed to the recogniser.
	Language string `yaml:"language"`

	// KeywordLimit caps how many script words are sent as recognition hints.
	// Zero disables hints.
	KeywordLimit int `yaml:"keyword_limit"`

	// KeywordBoost is the intensifier attached to each hint for providers
	// that support it.
	KeywordBoost float64 `yaml:"keyword_boost"`
}

// AlignmentConfig tunes the alignment engine. Hot-reloadable.
type AlignmentConfig struct {
	// Lookahead is how many words ahead the word aligner searches on a miss.
	Lookahead int `yaml:"lookahead"`

	// Phonetic enables the sound-alike rule of the fuzzy matcher.
	Phonetic bool `yaml:"phonetic"`

	// PhoneticThreshold is the minimum Jaro-Winkler similarity of two
	// sound-alike words.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// MaxUtteranceRunes bounds the transcript accumulated for one
	// recognition pass before the session is rebased.
	MaxUtteranceRunes int `yaml:"max_utterance_runes"`
}

// RecognitionConfig controls retries of failed recognition passes.
type RecognitionConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// AudioConfig describes the PCM formats on both sides of the converter.
type AudioConfig struct {
	// SampleRate and Channels are the format sent to the recogniser.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// InputSampleRate and InputChannels describe the raw capture stream.
	// Zero means the same as the recogniser format.
	InputSampleRate int `yaml:"input_sample_rate"`
	InputChannels   int `yaml:"input_channels"`
}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}

	p := &cfg.Prompter
	if p.Mode == "" {
		p.Mode = ModeWordTracking
	}
	if p.ScrollSpeed == 0 {
		p.ScrollSpeed = DefaultScrollSpeed
	}
	if p.VoiceHold == 0 {
		p.VoiceHold = DefaultVoiceHold
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.KeywordLimit == 0 {
		p.KeywordLimit = DefaultKeywordLimit
	}
	if p.KeywordBoost == 0 {
		p.KeywordBoost = DefaultKeywordBoost
	}

	a := &cfg.Alignment
	if a.Lookahead == 0 {
		a.Lookahead = DefaultLookahead
	}
	if a.PhoneticThreshold == 0 {
		a.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if a.MaxUtteranceRunes == 0 {
		a.MaxUtteranceRunes = DefaultMaxUtteranceRunes
	}

	r := &cfg.Recognition
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.InitialBackoff == 0 {
		r.InitialBackoff = DefaultInitialBackoff
	}
	if r.MaxBackoff == 0 {
		r.MaxBackoff = DefaultMaxBackoff
	}

	au := &cfg.Audio
	if au.SampleRate == 0 {
		au.SampleRate = DefaultSampleRate
	}
	if au.Channels == 0 {
		au.Channels = DefaultChannels
	}
	if au.InputSampleRate == 0 {
		au.InputSampleRate = au.SampleRate
	}
	if au.InputChannels == 0 {
		au.InputChannels = au.Channels
	}
}
