// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider wraps a transcription service (Deepgram, a whisper.cpp server, the
// OpenAI audio API, ...) behind a uniform streaming interface. Once opened, a
// SessionHandle accepts raw PCM and emits two streams of Transcript values:
// partials, each restating the utterance so far, and finals, which commit it.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/MrWong99/teleprompt/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after a session has ended.
var ErrSessionClosed = errors.New("stt: session is closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 suits most providers.
	SampleRate int

	// Channels is the number of interleaved channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag ("en-US", "de-DE"). An empty string
	// lets the provider detect the language, if supported.
	Language string

	// Keywords are vocabulary hints extracted from the script.
	Keywords []types.KeywordBoost
}

// SessionHandle is an open recognition pass.
//
// Callers must call Close when done. All methods are safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers 16-bit little-endian PCM matching StreamConfig.
	// It returns ErrSessionClosed (possibly wrapped) once the pass has ended.
	SendAudio(chunk []byte) error

	// Partials emits low-latency interim transcripts. The channel is closed
	// when the pass ends.
	Partials() <-chan types.Transcript

	// Finals emits committed transcripts. The channel is closed when the pass
	// ends.
	Finals() <-chan types.Transcript

	// Err returns the error that ended the pass, or nil for a clean end. It is
	// meaningful once both channels are closed.
	Err() error

	// Close ends the pass and releases its resources. After Close returns both
	// channels are closed. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new recognition pass. The returned handle accepts
	// audio immediately. The pass is bound to ctx: cancelling it ends the pass.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// KeywordsFromVocabulary turns plain hint words into boosts of equal weight.
func KeywordsFromVocabulary(words []string, boost float64) []types.KeywordBoost {
	if len(words) == 0 {
		return nil
	}
	out := make([]types.KeywordBoost, len(words))
	for i, w := range words {
		out[i] = types.KeywordBoost{Keyword: w, Boost: boost}
	}
	return out
}

// Hints returns the keyword texts of cfg, for providers that take a prompt
// rather than weighted boosts.
func (cfg StreamConfig) Hints() []string {
	out := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		out = append(out, kw.Keyword)
	}
	return out
}

var markerPattern = regexp.MustCompile(`\[[^\[\]]*\]|\([^()]*\)`)

// StripMarkers removes the non-speech annotations some recognisers emit in
// place of words, such as "[BLANK_AUDIO]", "[MUSIC]" or "(upbeat music)", and
// collapses the whitespace left behind. A transcript made only of markers
// becomes "".
func StripMarkers(text string) string {
	if strings.ContainsAny(text, "[(") {
		text = markerPattern.ReplaceAllString(text, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}
