// Package openai provides an STT provider backed by the OpenAI audio
// transcription API. The API is batch-only, so sessions stream through
// package batch; script vocabulary is sent as the transcription prompt.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/teleprompt/pkg/audio"
	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/batch"
)

// DefaultModel is the default transcription model.
const DefaultModel = "whisper-1"

// Ensure Provider implements the stt.Provider and batch.Transcriber
// interfaces.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ batch.Transcriber = (*Provider)(nil)
)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
	settings batch.Settings
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	language   string
	maxRetries int
	settings   batch.Settings
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Any OpenAI-compatible
// transcription server (e.g. a self-hosted faster-whisper) works.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for API requests, for example one
// with an instrumented transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// WithLanguage sets the language used when the stream config has none.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithMaxRetries sets how often the client retries a failed request.
// Negative values keep the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithSettings sets utterance segmentation for streaming sessions.
func WithSettings(s batch.Settings) Option {
	return func(c *config) {
		c.settings = s
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		client := *cfg.httpClient
		if cfg.timeout > 0 {
			client.Timeout = cfg.timeout
		}
		reqOpts = append(reqOpts, option.WithHTTPClient(&client))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
		settings: cfg.settings,
	}, nil
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai stt: %w", err)
	}
	return batch.Start(ctx, p, batch.NewRequest(cfg, p.language), p.settings), nil
}

// Transcribe implements batch.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, req batch.Request) (string, error) {
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(audio.EncodeWAV(pcm, req.Format)), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if req.Language != "" {
		params.Language = oai.String(baseLanguage(req.Language))
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return resp.Text, nil
}

// baseLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects
// ("en-US" -> "en").
func baseLanguage(tag string) string {
	for i, r := range tag {
		if r == '-' || r == '_' {
			return tag[:i]
		}
	}
	return tag
}
