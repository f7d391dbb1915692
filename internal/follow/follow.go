// Package follow runs the event loop that follows a reader through a script.
//
// A [Follower] owns one [align.Session] and the recognition passes feeding
// it. Every mutation happens on the goroutine running [Follower.Run]:
// commands such as [Follower.Load] or [Follower.JumpTo] are marshaled onto
// it, and transcripts from the current pass arrive as events. Progress is
// published to subscribers after each change.
package follow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/teleprompt/internal/align"
	"github.com/MrWong99/teleprompt/internal/config"
	"github.com/MrWong99/teleprompt/internal/observe"
	"github.com/MrWong99/teleprompt/pkg/provider/stt"
	"github.com/MrWong99/teleprompt/pkg/provider/vad"
)

var (
	// ErrNotListening is returned by [Follower.SendAudio] when no recognition
	// pass is open.
	ErrNotListening = errors.New("follow: not listening")

	// ErrRecognitionUnavailable is reported in [Progress.Err] once the
	// recognition passes failed more often in a row than the configured
	// retry limit. Listening stops until [Follower.Resume].
	ErrRecognitionUnavailable = errors.New("follow: recognition unavailable")

	// ErrStopped is returned by commands issued after [Follower.Run] returned.
	ErrStopped = errors.New("follow: follower is not running")
)

const defaultTick = 50 * time.Millisecond

// Option configures a [Follower].
type Option func(*Follower)

// WithMetrics sets the metric instruments. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Follower) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithVAD keeps voice-activated scrolling going while h classifies the
// audio passed to [Follower.SendAudio] as speech. cfg describes the frames
// h expects. The caller owns h.
func WithVAD(h vad.SessionHandle, cfg vad.Config) Option {
	return func(f *Follower) {
		if h != nil && cfg.FrameBytes() > 0 {
			f.gate = newVoiceGate(h, cfg.FrameBytes())
		}
	}
}

// WithTick sets the interval of the scroll ticker used by the classic and
// voice-activated modes.
func WithTick(d time.Duration) Option {
	return func(f *Follower) {
		if d > 0 {
			f.tick = d
		}
	}
}

type settings struct {
	prompter    config.PrompterConfig
	alignment   config.AlignmentConfig
	recognition config.RecognitionConfig
	audio       config.AudioConfig
}

func settingsFrom(cfg *config.Config) settings {
	return settings{
		prompter:    cfg.Prompter,
		alignment:   cfg.Alignment,
		recognition: cfg.Recognition,
		audio:       cfg.Audio,
	}
}

type command struct {
	fn   func() error
	done chan error
}

// Follower tracks the reading position in a script from live recognition.
// Its methods are safe for concurrent use.
type Follower struct {
	provider stt.Provider
	metrics  *observe.Metrics
	tick     time.Duration
	gate     *voiceGate

	cmds    chan command
	events  chan event
	started atomic.Bool
	running atomic.Bool
	stopped chan struct{}

	hub *hub

	mu     sync.Mutex
	handle stt.SessionHandle
	script *align.Script

	// Owned by the loop goroutine.
	ctx       context.Context
	session   *align.Session
	set       settings
	sessionID string
	pass      *pass
	lastErr   error
	winner    align.Strategy
	retry     *time.Timer
	retryC    <-chan time.Time
	lastTick  time.Time
	lastVoice time.Time
	carry     float64
	loaded    bool
}

// New returns a Follower that recognises speech with provider and takes its
// prompter, alignment, recognition and audio settings from cfg. cfg must have
// defaults applied. Call [Follower.Run] to start it.
func New(provider stt.Provider, cfg *config.Config, opts ...Option) *Follower {
	f := &Follower{
		provider: provider,
		metrics:  observe.DefaultMetrics(),
		tick:     defaultTick,
		cmds:     make(chan command),
		events:   make(chan event, 64),
		stopped:  make(chan struct{}),
		hub:      newHub(),
		set:      settingsFrom(cfg),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.session = align.NewSession(f.aligner())
	f.hub.latest = f.progress()
	return f
}

// Run processes commands and recognition events until ctx is cancelled. It
// may be called once.
func (f *Follower) Run(ctx context.Context) error {
	if !f.started.CompareAndSwap(false, true) {
		return errors.New("follow: Run called twice")
	}
	f.ctx = ctx
	f.running.Store(true)
	defer close(f.stopped)
	defer f.running.Store(false)
	defer f.shutdown()

	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()
	f.lastTick = time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-f.cmds:
			c.done <- c.fn()
		case ev := <-f.events:
			f.onEvent(ev)
		case <-f.retryC:
			f.retry, f.retryC = nil, nil
			if f.wantListening() {
				f.openPass()
				f.publish()
			}
		case now := <-ticker.C:
			f.onTick(now)
		}
	}
}

// Running reports whether the loop is processing commands.
func (f *Follower) Running() bool { return f.running.Load() }

// Subscribe returns a channel of progress snapshots, starting with the
// current one, and a func that ends the subscription.
func (f *Follower) Subscribe() (<-chan Progress, func()) { return f.hub.subscribe() }

// Snapshot returns the latest published progress.
func (f *Follower) Snapshot() Progress { return f.hub.snapshot() }

// Script returns the loaded script, or nil.
func (f *Follower) Script() *align.Script {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.script
}

// SendAudio forwards a PCM chunk to the voice activity detector, if any,
// and to the open recognition pass.
func (f *Follower) SendAudio(chunk []byte) error {
	if f.gate != nil {
		if err := f.gate.feed(chunk); err != nil {
			return fmt.Errorf("follow: vad: %w", err)
		}
	}
	f.mu.Lock()
	h := f.handle
	f.mu.Unlock()
	if h == nil {
		return ErrNotListening
	}
	if err := h.SendAudio(chunk); err != nil {
		if errors.Is(err, stt.ErrSessionClosed) {
			return ErrNotListening
		}
		return fmt.Errorf("follow: send audio: %w", err)
	}
	return nil
}

// Load starts a new session on text. Any earlier session is discarded.
func (f *Follower) Load(ctx context.Context, text string) error {
	return f.do(ctx, func() error {
		f.closePass()
		f.stopRetry()

		script := align.NewScript(text)
		f.session.SetAligner(f.aligner())
		f.session.Start(script)
		f.sessionID = uuid.NewString()
		f.lastErr = nil
		f.winner = ""
		f.carry = 0
		f.setScript(script)
		if !f.loaded {
			f.loaded = true
			f.metrics.ActiveSessions.Add(f.ctx, 1)
		}
		observe.Logger(f.logCtx()).Info("follow: script loaded",
			"script_id", script.ID(),
			"runes", script.Len(),
			"words", len(script.Words()),
		)

		f.syncPass()
		f.publish()
		return nil
	})
}

// JumpTo moves the reading position to offset and restarts recognition from
// there.
func (f *Follower) JumpTo(ctx context.Context, offset int) error {
	return f.do(ctx, func() error { return f.jump(offset) })
}

// JumpToWord moves the reading position to the start of word i.
func (f *Follower) JumpToWord(ctx context.Context, i int) error {
	return f.do(ctx, func() error {
		script := f.session.Script()
		if script == nil {
			return align.ErrIdle
		}
		words := script.Words()
		if i < 0 || i >= len(words) {
			return fmt.Errorf("%w: word %d not in [0, %d)", align.ErrInvalidOffset, i, len(words))
		}
		return f.jump(words[i].Offset)
	})
}

func (f *Follower) jump(offset int) error {
	if err := f.session.JumpTo(offset); err != nil {
		return err
	}
	f.stopRetry()
	f.closePass()
	f.syncPass()
	f.publish()
	return nil
}

// Pause stops listening. The position is kept.
func (f *Follower) Pause(ctx context.Context) error {
	return f.do(ctx, func() error {
		if f.session.State() == align.StateIdle {
			return align.ErrIdle
		}
		f.session.Pause()
		f.stopRetry()
		f.closePass()
		f.publish()
		return nil
	})
}

// Resume continues listening from the current position. It also clears
// [ErrRecognitionUnavailable].
func (f *Follower) Resume(ctx context.Context) error {
	return f.do(ctx, func() error {
		if f.session.State() == align.StateIdle {
			return align.ErrIdle
		}
		f.session.Resume()
		f.lastErr = nil
		f.stopRetry()
		f.closePass()
		f.syncPass()
		f.publish()
		return nil
	})
}

// Stop ends the session and unloads the script.
func (f *Follower) Stop(ctx context.Context) error {
	return f.do(ctx, func() error {
		f.stopRetry()
		f.closePass()
		f.session.Reset()
		f.unload()
		f.publish()
		return nil
	})
}

// SetMode switches the prompter mode.
func (f *Follower) SetMode(ctx context.Context, mode config.Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("follow: invalid mode %q", mode)
	}
	return f.do(ctx, func() error {
		f.set.prompter.Mode = mode
		f.carry = 0
		f.syncPass()
		f.publish()
		return nil
	})
}

// Apply takes over the hot-reloadable settings of cfg. Recognition restarts
// when the language or the vocabulary hints changed.
func (f *Follower) Apply(ctx context.Context, cfg *config.Config) error {
	next := settingsFrom(cfg)
	return f.do(ctx, func() error {
		old := f.set.prompter
		f.set.prompter = next.prompter
		f.set.alignment = next.alignment
		f.set.recognition = next.recognition
		f.session.SetAligner(f.aligner())

		if old.Language != next.prompter.Language ||
			old.KeywordLimit != next.prompter.KeywordLimit ||
			old.KeywordBoost != next.prompter.KeywordBoost {
			f.closePass()
		}
		if old.Mode != next.prompter.Mode {
			f.carry = 0
		}
		f.syncPass()
		f.publish()
		return nil
	})
}

func (f *Follower) do(ctx context.Context, fn func() error) error {
	c := command{fn: fn, done: make(chan error, 1)}
	select {
	case f.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		return ErrStopped
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		select {
		case err := <-c.done:
			return err
		default:
			return ErrStopped
		}
	}
}

func (f *Follower) aligner() *align.Aligner {
	var opts []align.MatcherOption
	if f.set.alignment.Phonetic {
		opts = append(opts, align.WithPhonetic(f.set.alignment.PhoneticThreshold))
	}
	return align.NewAligner(
		align.WithLookahead(f.set.alignment.Lookahead),
		align.WithMatcher(align.NewMatcher(opts...)),
	)
}

func (f *Follower) logCtx() context.Context {
	ctx := f.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if f.sessionID == "" {
		return ctx
	}
	return observe.WithCorrelationID(ctx, f.sessionID)
}

func (f *Follower) wantListening() bool {
	return f.provider != nil &&
		f.session.State() == align.StateActive &&
		f.set.prompter.Mode != config.ModeClassic
}

// syncPass opens or closes the recognition pass to match the session state
// and mode. A scheduled retry counts as listening.
func (f *Follower) syncPass() {
	if !f.wantListening() {
		f.stopRetry()
		f.closePass()
		return
	}
	if f.pass == nil && f.retryC == nil {
		f.openPass()
	}
}

func (f *Follower) openPass() {
	script := f.session.Script()
	cfg := stt.StreamConfig{
		SampleRate: f.set.audio.SampleRate,
		Channels:   f.set.audio.Channels,
		Language:   f.set.prompter.Language,
		Keywords:   stt.KeywordsFromVocabulary(script.Vocabulary(f.set.prompter.KeywordLimit), f.set.prompter.KeywordBoost),
	}
	// Each pass matches afresh from the recognized offset under its own
	// generation.
	gen := f.session.Rebase()

	ctx, cancel := context.WithCancel(f.ctx)
	start := time.Now()
	h, err := f.provider.StartStream(ctx, cfg)
	f.metrics.STTStartDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		cancel()
		f.fail(fmt.Errorf("follow: start recognition: %w", err))
		return
	}

	p := &pass{gen: gen, handle: h, cancel: cancel, done: make(chan struct{})}
	f.pass = p
	f.setHandle(h)
	go p.pump(f.events)
	observe.Logger(f.logCtx()).Debug("follow: recognition pass opened",
		"generation", gen,
		"offset", f.session.Recognized(),
		"keywords", len(cfg.Keywords),
	)
}

func (f *Follower) closePass() {
	p := f.pass
	if p == nil {
		return
	}
	f.pass = nil
	f.setHandle(nil)
	close(p.done)
	p.cancel()
	if err := p.handle.Close(); err != nil {
		observe.Logger(f.logCtx()).Debug("follow: close recognition pass", "err", err)
	}
}

func (f *Follower) stopRetry() {
	if f.retry != nil {
		f.retry.Stop()
	}
	f.retry, f.retryC = nil, nil
}

// fail handles a recognition pass that could not start or ended with an
// error. The reading position is kept.
func (f *Follower) fail(err error) {
	ctx := f.logCtx()
	n := f.session.Retry()
	rc := f.set.recognition
	if n > rc.MaxRetries {
		f.lastErr = fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
		f.session.Pause()
		f.metrics.RecognitionFailures.Add(ctx, 1)
		observe.Logger(ctx).Error("follow: recognition unavailable", "attempts", n, "err", err)
		return
	}
	d := backoff(n, rc.InitialBackoff, rc.MaxBackoff)
	f.metrics.RecognitionRetries.Add(ctx, 1)
	observe.Logger(ctx).Warn("follow: recognition pass failed, retrying",
		"attempt", n,
		"backoff", d,
		"err", err,
	)
	f.retry = time.NewTimer(d)
	f.retryC = f.retry.C
}

func (f *Follower) onEvent(ev event) {
	if ev.end {
		if ev.pass != f.pass {
			return
		}
		f.closePass()
		if ev.err != nil {
			f.fail(ev.err)
		} else {
			f.syncPass()
		}
		f.publish()
		return
	}

	if ev.pass == f.pass && ev.tr.Text != "" {
		f.lastVoice = time.Now()
	}
	if f.set.prompter.Mode != config.ModeWordTracking {
		return
	}
	ev.pass.acc.add(ev.tr)
	f.align(ev.pass)
}

// align feeds the accumulated utterance of p into the session.
func (f *Follower) align(p *pass) {
	ctx, span := observe.StartSpan(f.logCtx(), "follow.update")
	defer span.End()

	start := time.Now()
	res := f.session.Update(p.gen, p.acc.text())
	took := time.Since(start)

	outcome := observe.OutcomeUnchanged
	switch {
	case res.Stale:
		outcome = observe.OutcomeStale
	case res.Ignored:
		outcome = observe.OutcomeIgnored
	case res.Advanced:
		outcome = observe.OutcomeAdvanced
	}
	f.metrics.RecordAlignment(ctx, outcome, string(res.Winner), took)
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("offset", res.Offset),
		attribute.Int64("generation", int64(p.gen)),
	)
	if res.Stale || res.Ignored {
		return
	}

	switch {
	case f.session.State() == align.StateDone:
		f.closePass()
		observe.Logger(ctx).Info("follow: reached end of script")
	case p == f.pass && p.acc.partial == "" && p.acc.runes() > f.set.alignment.MaxUtteranceRunes:
		// Only rebase on an utterance boundary. The next partial restates
		// the whole utterance, so a rebase inside it would match those words
		// again after the new base.
		p.gen = f.session.Rebase()
		p.acc.reset()
	}
	if res.Advanced {
		f.winner = res.Winner
		f.publish()
	}
}

func (f *Follower) onTick(now time.Time) {
	dt := now.Sub(f.lastTick)
	f.lastTick = now

	pc := f.set.prompter
	if pc.Mode == config.ModeWordTracking || f.session.State() != align.StateActive {
		f.carry = 0
		return
	}
	if pc.Mode == config.ModeVoiceActivated && now.Sub(f.voiceHeard()) > pc.VoiceHold {
		f.carry = 0
		return
	}

	f.carry += pc.ScrollSpeed * dt.Seconds()
	n := int(f.carry)
	if n == 0 {
		return
	}
	f.carry -= float64(n)
	if !f.session.Advance(n) {
		return
	}
	if f.session.State() == align.StateDone {
		f.closePass()
	}
	f.publish()
}

// voiceHeard returns the latest of the last transcript and the last speech
// frame.
func (f *Follower) voiceHeard() time.Time {
	t := f.lastVoice
	if f.gate != nil {
		if s := f.gate.lastSpeech(); s.After(t) {
			t = s
		}
	}
	return t
}

func (f *Follower) shutdown() {
	f.stopRetry()
	f.closePass()
	f.session.Reset()
	f.unload()
	f.publish()
}

func (f *Follower) unload() {
	if f.loaded {
		f.loaded = false
		f.metrics.ActiveSessions.Add(f.logCtx(), -1)
	}
	f.sessionID = ""
	f.lastErr = nil
	f.winner = ""
	f.setScript(nil)
}

func (f *Follower) setHandle(h stt.SessionHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handle = h
}

func (f *Follower) setScript(s *align.Script) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = s
}

func (f *Follower) publish() { f.hub.publish(f.progress()) }

func (f *Follower) progress() Progress {
	p := Progress{
		SessionID:  f.sessionID,
		Generation: f.session.Generation(),
		Offset:     f.session.Recognized(),
		MatchStart: f.session.MatchStart(),
		State:      f.session.State().String(),
		Mode:       f.set.prompter.Mode,
		Listening:  f.pass != nil,
		Winner:     string(f.winner),
	}
	if s := f.session.Script(); s != nil {
		p.ScriptID = s.ID()
		p.Length = s.Len()
		p.WordIndex = min(s.WordAt(p.Offset), max(len(s.Words())-1, 0))
	}
	if f.lastErr != nil {
		p.Err = f.lastErr
		p.Error = f.lastErr.Error()
	}
	return p
}
