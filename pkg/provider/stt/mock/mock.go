// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out a fresh Session for every StartStream call (unless a
// fixed Session is set) and publishes it on Opened, so tests can drive each
// recognition pass individually:
//
//	p := &mock.Provider{}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess := <-p.Opened()
//	sess.Partial("hello wor")
//	sess.End(errors.New("stream dropped"))
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session, if non-nil, is returned by every StartStream call.
	Session stt.SessionHandle

	// StartStreamErrs are returned, one per call and in order, before any
	// session is opened. Nil entries let that call succeed.
	StartStreamErrs []error

	// StartStreamErr, if non-nil, is returned once StartStreamErrs is used up.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	opened chan *Session
}

// StartStream records the call and returns a new Session or the configured
// error.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if len(p.StartStreamErrs) > 0 {
		err := p.StartStreamErrs[0]
		p.StartStreamErrs = p.StartStreamErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	sess := NewSession()
	select {
	case p.openedLocked() <- sess:
	default:
	}
	return sess, nil
}

// Opened returns a channel that receives every Session created by StartStream.
// It buffers up to 64 sessions; later ones are not delivered until the
// buffer drains.
func (p *Provider) Opened() <-chan *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openedLocked()
}

func (p *Provider) openedLocked() chan *Session {
	if p.opened == nil {
		p.opened = make(chan *Session, 64)
	}
	return p.opened
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Calls returns a copy of the recorded StartStream calls. Thread-safe.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.StartStreamCalls))
	copy(out, p.StartStreamCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of stt.SessionHandle. Tests push results
// with Partial and Final and end the pass with End. Close ends it cleanly.
type Session struct {
	mu sync.Mutex

	partials chan types.Transcript
	finals   chan types.Transcript
	done     chan struct{}
	endOnce  sync.Once
	err      error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns an open Session with buffered result channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		done:     make(chan struct{}),
	}
}

// Partial emits an interim transcript. It is a no-op after End.
func (s *Session) Partial(text string) {
	s.emit(s.partials, types.Transcript{Text: text})
}

// Final emits a committed transcript. It is a no-op after End.
func (s *Session) Final(text string) {
	s.emit(s.finals, types.Transcript{Text: text, IsFinal: true})
}

func (s *Session) emit(ch chan types.Transcript, t types.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	ch <- t
}

// End terminates the pass with err (nil for a clean end) and closes both
// result channels. Only the first call has an effect.
func (s *Session) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.err = err
		close(s.done)
		close(s.partials)
		close(s.finals)
	})
}

// Done is closed once the pass has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// SendAudio records the call and returns SendAudioErr, or
// stt.ErrSessionClosed after End.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Partials returns the interim transcript channel.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the committed transcript channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Err returns the error passed to End.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Closed returns the number of Close calls. Thread-safe.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Close records the call, ends the pass cleanly and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	err := s.CloseErr
	s.mu.Unlock()
	s.End(nil)
	return err
}

// Ensure Session implements stt.SessionHandle at compile time.
var _ stt.SessionHandle = (*Session)(nil)
