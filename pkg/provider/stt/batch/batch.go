// Package batch turns a batch (whole-buffer) transcription engine into a
// streaming stt.SessionHandle.
//
// Incoming PCM is buffered per utterance. Leading silence is discarded, and
// while speech accumulates the whole utterance buffer is re-transcribed every
// PartialInterval and emitted as a partial, so each partial restates the
// utterance so far. After SilenceDuration of trailing silence, or once the
// buffer reaches MaxUtterance, the buffer is transcribed one last time and
// emitted as a final, and a new utterance begins.
//
// Transcription runs on a single worker goroutine, so results are emitted in
// the order they were requested. At most one partial request is queued at a
// time; ticks that find one pending are skipped.
//
// A transcription error ends the session: both channels close and Err
// returns the error.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/teleprompt/pkg/audio"
	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/types"
)

const (
	// DefaultRMSThreshold is the level (in 16-bit sample units) below which a
	// chunk counts as silence. 300 is near-silence for typical microphones.
	DefaultRMSThreshold = 300.0

	DefaultPartialInterval = 1500 * time.Millisecond
	DefaultSilence         = 700 * time.Millisecond
	DefaultMaxUtterance    = 15 * time.Second
	DefaultMinPartialAudio = 500 * time.Millisecond
)

// Request carries the per-pass recognition parameters handed to a
// Transcriber with each buffer.
type Request struct {
	Format   audio.Format
	Language string
	// Prompt is a space-separated list of vocabulary hints.
	Prompt string
}

// Transcriber converts one complete PCM buffer to text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, req Request) (string, error)
}

// TranscriberFunc adapts a plain function to [Transcriber].
type TranscriberFunc func(ctx context.Context, pcm []byte, req Request) (string, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, pcm []byte, req Request) (string, error) {
	return f(ctx, pcm, req)
}

// Settings controls utterance segmentation. Zero fields take the package
// defaults.
type Settings struct {
	// RMSThreshold separates speech from silence.
	RMSThreshold float64
	// PartialInterval is how often a growing utterance is re-transcribed.
	// A negative value disables partials.
	PartialInterval time.Duration
	// MinPartialAudio is the least buffered speech worth a partial request.
	MinPartialAudio time.Duration
	// Silence is the trailing silence that commits an utterance.
	Silence time.Duration
	// MaxUtterance forces a final when the buffer reaches this length.
	MaxUtterance time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.RMSThreshold <= 0 {
		s.RMSThreshold = DefaultRMSThreshold
	}
	if s.PartialInterval == 0 {
		s.PartialInterval = DefaultPartialInterval
	}
	if s.MinPartialAudio <= 0 {
		s.MinPartialAudio = DefaultMinPartialAudio
	}
	if s.Silence <= 0 {
		s.Silence = DefaultSilence
	}
	if s.MaxUtterance <= 0 {
		s.MaxUtterance = DefaultMaxUtterance
	}
	return s
}

// NewRequest builds the Request for a stream config, falling back to
// defaultLang and 16 kHz mono where cfg leaves fields empty.
func NewRequest(cfg stt.StreamConfig, defaultLang string) Request {
	f := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	lang := cfg.Language
	if lang == "" {
		lang = defaultLang
	}
	return Request{Format: f, Language: lang, Prompt: strings.Join(cfg.Hints(), " ")}
}

type job struct {
	pcm   []byte
	final bool
	at    time.Duration
}

// Session is a streaming session over a [Transcriber]. It implements
// stt.SessionHandle.
type Session struct {
	t        Transcriber
	req      Request
	settings Settings

	audio    chan []byte
	jobs     chan job
	partials chan types.Transcript
	finals   chan types.Transcript

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// partialQueued is true while a partial job waits in jobs.
	partialMu     sync.Mutex
	partialQueued bool

	errMu sync.Mutex
	err   error
}

// Start opens a session that transcribes with t. The session ends when ctx is
// cancelled, Close is called, or a transcription fails.
func Start(ctx context.Context, t Transcriber, req Request, settings Settings) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		t:        t,
		req:      req,
		settings: settings.withDefaults(),
		audio:    make(chan []byte, 256),
		jobs:     make(chan job, 8),
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.wg.Add(2)
	go s.processLoop()
	go s.worker()
	return s
}

// SendAudio queues a chunk of PCM in the session's format.
func (s *Session) SendAudio(chunk []byte) error {
	select {
	case <-s.ctx.Done():
		return fmt.Errorf("batch: %w", stt.ErrSessionClosed)
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.ctx.Done():
		return fmt.Errorf("batch: %w", stt.ErrSessionClosed)
	}
}

// Partials returns the channel of utterance restatements.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the channel of committed utterances.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Err returns the transcription error that ended the session, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close ends the session and discards any audio not yet transcribed.
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.cancel()
}

// processLoop owns the utterance buffer and the silence detector.
func (s *Session) processLoop() {
	defer s.wg.Done()
	defer close(s.jobs)

	var tick <-chan time.Time
	if s.settings.PartialInterval > 0 {
		t := time.NewTicker(s.settings.PartialInterval)
		defer t.Stop()
		tick = t.C
	}

	f := s.req.Format
	maxBytes := f.Bytes(s.settings.MaxUtterance)
	minPartial := f.Bytes(s.settings.MinPartialAudio)

	var (
		buf       []byte
		hadSpeech bool
		silence   time.Duration
		dirty     bool
		elapsed   time.Duration // stream time of the first byte in buf
		streamPos time.Duration
	)

	commit := func() bool {
		if hadSpeech && len(buf) > 0 {
			if !s.enqueue(job{pcm: buf, final: true, at: elapsed}) {
				return false
			}
		}
		buf, hadSpeech, silence, dirty = nil, false, 0, false
		return true
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case chunk := <-s.audio:
			d := f.Duration(len(chunk))
			streamPos += d
			if audio.RMS(chunk) < s.settings.RMSThreshold {
				if !hadSpeech {
					continue
				}
				silence += d
				buf = append(buf, chunk...)
				if silence >= s.settings.Silence && !commit() {
					return
				}
				continue
			}
			if !hadSpeech {
				elapsed = streamPos - d
			}
			hadSpeech = true
			silence = 0
			dirty = true
			buf = append(buf, chunk...)
			if maxBytes > 0 && len(buf) >= maxBytes && !commit() {
				return
			}

		case <-tick:
			if !hadSpeech || !dirty || len(buf) < minPartial {
				continue
			}
			if s.tryQueuePartial(job{pcm: buf[:len(buf):len(buf)], at: elapsed}) {
				dirty = false
			}
		}
	}
}

// enqueue blocks until j is queued or the session ends.
func (s *Session) enqueue(j job) bool {
	select {
	case s.jobs <- j:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) tryQueuePartial(j job) bool {
	s.partialMu.Lock()
	defer s.partialMu.Unlock()
	if s.partialQueued {
		return false
	}
	select {
	case s.jobs <- j:
		s.partialQueued = true
		return true
	default:
		return false
	}
}

// worker transcribes queued buffers in order and owns the output channels.
func (s *Session) worker() {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for j := range s.jobs {
		if !j.final {
			s.partialMu.Lock()
			s.partialQueued = false
			s.partialMu.Unlock()
		}
		if s.ctx.Err() != nil {
			continue
		}
		text, err := s.t.Transcribe(s.ctx, j.pcm, s.req)
		if err != nil {
			// Errors after Close or cancellation are teardown noise.
			if s.ctx.Err() == nil {
				s.fail(fmt.Errorf("batch: transcribe: %w", err))
			}
			continue
		}
		text = stt.StripMarkers(text)
		if text == "" {
			continue
		}
		tr := types.Transcript{
			Text:      text,
			IsFinal:   j.final,
			Timestamp: j.at,
			Duration:  s.req.Format.Duration(len(j.pcm)),
		}
		out := s.partials
		if j.final {
			out = s.finals
		}
		select {
		case out <- tr:
		case <-s.ctx.Done():
		}
	}
}

var _ stt.SessionHandle = (*Session)(nil)
