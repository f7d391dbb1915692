// Package energy implements a level-based voice activity detector.
//
// The speech probability of a frame is its RMS level relative to a reference
// level, clamped to [0, 1]. A segment starts on the first frame at or above
// the speech threshold and ends after a run of frames below the silence
// threshold, so short pauses between words do not end it.
package energy

import (
	"fmt"
	"sync"

	"github.com/MrWong99/teleprompt/pkg/audio"
	"github.com/MrWong99/teleprompt/pkg/provider/vad"
)

const (
	// DefaultReference is the RMS level, in 16-bit sample units, that maps
	// to probability 1.
	DefaultReference = 1000.0

	// DefaultHangover is the number of quiet frames that end a segment.
	DefaultHangover = 10
)

// Option configures an [Engine].
type Option func(*Engine)

// WithReference sets the RMS level that maps to probability 1.
func WithReference(rms float64) Option {
	return func(e *Engine) {
		if rms > 0 {
			e.reference = rms
		}
	}
}

// WithHangover sets how many consecutive quiet frames end a speech segment.
func WithHangover(frames int) Option {
	return func(e *Engine) {
		if frames > 0 {
			e.hangover = frames
		}
	}
}

// Engine creates energy detection sessions. It is safe for concurrent use.
type Engine struct {
	reference float64
	hangover  int
}

// New returns an Engine configured with opts.
func New(opts ...Option) *Engine {
	e := &Engine{reference: DefaultReference, hangover: DefaultHangover}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{cfg: cfg, frameBytes: cfg.FrameBytes(), reference: e.reference, hangover: e.hangover}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	cfg        vad.Config
	frameBytes int
	reference  float64
	hangover   int

	mu       sync.Mutex
	speaking bool
	quiet    int
	closed   bool
}

func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	p := min(audio.RMS(frame)/s.reference, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, vad.ErrClosed
	}

	ev := vad.Event{Probability: p}
	switch {
	case !s.speaking && p >= s.cfg.SpeechThreshold:
		s.speaking, s.quiet = true, 0
		ev.Type = vad.SpeechStart
	case !s.speaking:
		ev.Type = vad.Silence
	case p < s.cfg.SilenceThreshold:
		s.quiet++
		if s.quiet >= s.hangover {
			s.speaking, s.quiet = false, 0
			ev.Type = vad.SpeechEnd
		} else {
			ev.Type = vad.SpeechContinue
		}
	default:
		s.quiet = 0
		ev.Type = vad.SpeechContinue
	}
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking, s.quiet = false, 0
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
