package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/teleprompt/internal/config"
	"github.com/MrWong99/teleprompt/internal/observe"
	"github.com/MrWong99/teleprompt/internal/resilience"
	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/batch"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/deepgram"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/mock"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/openai"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/whisper"
	"github.com/MrWong99/teleprompt/pkg/provider/vad"
	"github.com/MrWong99/teleprompt/pkg/provider/vad/energy"
)

const providerKind = "stt"

// newHTTPClient returns the client shared by the HTTP-based recognisers.
// Requests are traced through the global tracer provider.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}
}

// registerBuiltinProviders wires every recogniser that ships with teleprompt
// into reg.
func registerBuiltinProviders(reg *config.Registry, client *http.Client) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if d, ok := optDuration(entry.Options, "keep_alive"); ok {
			opts = append(opts, deepgram.WithKeepAlive(d))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithHTTPClient(client)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		s := batchSettings(entry.Options)
		if s.Silence > 0 {
			opts = append(opts, whisper.WithSilence(s.Silence))
		}
		if s.MaxUtterance > 0 {
			opts = append(opts, whisper.WithMaxUtterance(s.MaxUtterance))
		}
		if s.PartialInterval != 0 {
			opts = append(opts, whisper.WithPartialInterval(s.PartialInterval))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		opts := []whisper.NativeOption{whisper.WithNativeSettings(batchSettings(entry.Options))}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n, ok := optInt(entry.Options, "threads"); ok && n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []openai.Option{
			openai.WithHTTPClient(client),
			openai.WithSettings(batchSettings(entry.Options)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		if d, ok := optDuration(entry.Options, "timeout"); ok {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, ok := optInt(entry.Options, "max_retries"); ok {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// mock never transcribes anything; it keeps the word-tracking loop
	// running for dry runs of the overlay.
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &mock.Provider{}, nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if f, ok := optFloat(entry.Options, "reference"); ok {
			opts = append(opts, energy.WithReference(f))
		}
		if n, ok := optInt(entry.Options, "hangover"); ok {
			opts = append(opts, energy.WithHangover(n))
		}
		return energy.New(opts...), nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", providerKind, "name", name)
	}
}

// Detector defaults for options left out of the vad entry.
const (
	defaultVADFrameMs          = 20
	defaultVADSpeechThreshold  = 0.5
	defaultVADSilenceThreshold = 0.35
)

// buildVAD opens a detection session on the recogniser's audio format. The
// handle is nil when no detector is configured.
func buildVAD(cfg *config.Config, reg *config.Registry) (vad.SessionHandle, vad.Config, error) {
	entry := cfg.Providers.VAD
	vcfg := vad.Config{
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		FrameMs:          defaultVADFrameMs,
		SpeechThreshold:  defaultVADSpeechThreshold,
		SilenceThreshold: defaultVADSilenceThreshold,
	}
	if entry.Name == "" {
		return nil, vcfg, nil
	}
	if n, ok := optInt(entry.Options, "frame_ms"); ok {
		vcfg.FrameMs = n
	}
	if f, ok := optFloat(entry.Options, "speech_threshold"); ok {
		vcfg.SpeechThreshold = f
	}
	if f, ok := optFloat(entry.Options, "silence_threshold"); ok {
		vcfg.SilenceThreshold = f
	}

	engine, err := reg.CreateVAD(entry)
	if err != nil {
		return nil, vcfg, err
	}
	h, err := engine.NewSession(vcfg)
	if err != nil {
		return nil, vcfg, fmt.Errorf("vad session: %w", err)
	}
	slog.Info("provider created", "kind", "vad", "name", entry.Name, "frame_ms", vcfg.FrameMs)
	return h, vcfg, nil
}

// buildSTT creates the configured recogniser and its fallbacks. The result
// is nil when no provider is configured. Every start attempt is counted in
// the provider metrics. The returned closers release native resources.
func buildSTT(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (stt.Provider, []io.Closer, error) {
	primary := cfg.Providers.STT
	if primary.Name == "" {
		return nil, nil, nil
	}

	var closers []io.Closer
	create := func(entry config.ProviderEntry) (stt.Provider, error) {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, err
		}
		if c, ok := p.(io.Closer); ok {
			closers = append(closers, c)
		}
		slog.Info("provider created", "kind", providerKind, "name", entry.Name, "model", entry.Model)
		return p, nil
	}

	first, err := create(primary)
	if err != nil {
		return nil, nil, err
	}
	fb := resilience.NewSTTFallback(first, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("stt circuit breaker changed state", "name", name, "from", from, "to", to)
			},
		},
	})
	for _, entry := range cfg.Providers.Fallbacks {
		p, err := create(entry)
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("fallback: %w", err)
		}
		fb.AddFallback(entry.Name, p)
	}

	fb.OnAttempt = func(ctx context.Context, name string, took time.Duration, err error) {
		status := "ok"
		if err != nil {
			status = "error"
			if !errors.Is(err, context.Canceled) {
				m.RecordProviderError(ctx, name, providerKind)
			}
		}
		m.RecordProviderRequest(ctx, name, providerKind, status)
		slog.Debug("stt start attempt", "name", name, "took", took, "err", err)
	}
	return fb, closers, nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("close provider", "err", err)
		}
	}
}

// batchSettings reads the utterance segmentation options of the batch-based
// recognisers.
func batchSettings(opts map[string]any) batch.Settings {
	var s batch.Settings
	if f, ok := optFloat(opts, "rms_threshold"); ok {
		s.RMSThreshold = f
	}
	if d, ok := optDuration(opts, "partial_interval"); ok {
		s.PartialInterval = d
	}
	if d, ok := optDuration(opts, "min_partial_audio"); ok {
		s.MinPartialAudio = d
	}
	if d, ok := optDuration(opts, "silence"); ok {
		s.Silence = d
	}
	if d, ok := optDuration(opts, "max_utterance"); ok {
		s.MaxUtterance = d
	}
	return s
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration reads a duration written as a Go duration string ("750ms").
func optDuration(opts map[string]any, key string) (time.Duration, bool) {
	s := optString(opts, key)
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("ignoring invalid provider option", "key", key, "value", s, "err", err)
		return 0, false
	}
	return d, true
}

func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
