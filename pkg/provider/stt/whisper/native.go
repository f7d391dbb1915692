// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/teleprompt/pkg/audio"
	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/provider/stt/batch"
)

// Compile-time assertions.
var (
	_ stt.Provider      = (*NativeProvider)(nil)
	_ batch.Transcriber = (*NativeProvider)(nil)
)

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the recognition language. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSettings sets utterance segmentation.
func WithNativeSettings(s batch.Settings) NativeOption {
	return func(p *NativeProvider) { p.settings = s }
}

// WithNativeThreads sets the number of CPU threads per inference. Zero keeps
// the library default.
func WithNativeThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings.
// The model is loaded once and shared across sessions; each inference gets
// its own whisper context, since contexts are not safe for concurrent use.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	threads  uint
	settings batch.Settings

	// whisper.cpp saturates the CPU on its own; inferences from concurrent
	// sessions are serialised.
	mu sync.Mutex
}

// NewNative creates a NativeProvider that loads the model at modelPath. The
// caller must call Close when the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a new transcription session.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	return batch.Start(ctx, p, batch.NewRequest(cfg, p.language), p.settings), nil
}

// Transcribe runs whisper.cpp on pcm and returns the concatenated segment
// text.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte, req batch.Request) (string, error) {
	samples := audio.Float32Mono(pcm, req.Format.Channels)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if req.Language != "" {
		if err := wctx.SetLanguage(req.Language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", req.Language, "error", err)
		}
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}

	start := time.Now()
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	slog.Debug("whisper: native inference done",
		"audio", req.Format.Duration(len(pcm)),
		"took", time.Since(start),
	)
	return strings.Join(parts, " "), nil
}
