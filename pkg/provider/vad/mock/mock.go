// Package mock provides test doubles for the vad package interfaces.
//
// Engine records the Config of every session it creates. Session returns a
// scripted sequence of events and records the frames it receives.
package mock

import (
	"sync"

	"github.com/MrWong99/teleprompt/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a new default Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	configs []vad.Config
}

// NewSession records cfg and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Configs returns the config of every NewSession call in order.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vad.Config(nil), e.configs...)
}

var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle. It is safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	// Events are returned by successive ProcessFrame calls. Once exhausted,
	// Default is returned.
	Events []vad.Event

	// Default is returned when Events is exhausted. Its zero value is a
	// speech start at probability 0, so set it explicitly in tests that
	// expect silence.
	Default vad.Event

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	frames []int
	resets int
	closed bool
}

// ProcessFrame records the frame length and returns the next event.
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, vad.ErrClosed
	}
	s.frames = append(s.frames, len(frame))
	if s.ProcessFrameErr != nil {
		return vad.Event{}, s.ProcessFrameErr
	}
	if len(s.Events) > 0 {
		ev := s.Events[0]
		s.Events = s.Events[1:]
		return ev, nil
	}
	return s.Default, nil
}

// Reset counts the call.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames returns the length of every processed frame in order.
func (s *Session) Frames() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.frames...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ResetCount returns the number of Reset calls.
func (s *Session) ResetCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

var _ vad.SessionHandle = (*Session)(nil)
