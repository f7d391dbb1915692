// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] talks to a running whisper-server (POST /inference) and
// [NativeProvider] runs the model in-process through the whisper.cpp Go
// bindings. whisper.cpp is a batch engine, so both providers stream through
// package batch: the current utterance is re-transcribed periodically and
// emitted as a partial, and committed as a final after trailing silence.
//
// Script vocabulary from StreamConfig.Keywords is passed to whisper as the
// initial prompt, which biases decoding towards those spellings.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilence(500*time.Millisecond),
//	)
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Partials()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/MrWong99/teleprompt/pkg/audio"
	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/batch"
)

const defaultLanguage = "en"

// Compile-time assertions.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ batch.Transcriber = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSilence sets the trailing silence that commits an utterance.
func WithSilence(d time.Duration) Option {
	return func(p *Provider) {
		p.settings.Silence = d
	}
}

// WithMaxUtterance sets the longest utterance buffered before a final is
// forced regardless of silence.
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Provider) {
		p.settings.MaxUtterance = d
	}
}

// WithPartialInterval sets how often the growing utterance is re-transcribed.
// A negative value disables partials.
func WithPartialInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.settings.PartialInterval = d
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Multiple sessions may be open simultaneously; each keeps its own buffer.
type Provider struct {
	serverURL  string
	model      string
	language   string
	settings   batch.Settings
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a new transcription session. No connection is made until
// the first utterance is ready.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	return batch.Start(ctx, p, batch.NewRequest(cfg, p.language), p.settings), nil
}

// Transcribe encodes pcm as WAV and POSTs it to the /inference endpoint as
// multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, req batch.Request) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, req.Format)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"language":        req.Language,
		"model":           p.model,
		"prompt":          req.Prompt,
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
