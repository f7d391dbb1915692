package align

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a [Session].
type State int

const (
	// StateIdle means no script is loaded.
	StateIdle State = iota
	// StateActive means transcript updates are being matched.
	StateActive
	// StatePaused means updates are ignored until [Session.Resume].
	StatePaused
	// StateDone means the recognized offset reached the end of the script.
	StateDone
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInvalidOffset is returned by [Session.JumpTo] for offsets outside
	// [0, script length].
	ErrInvalidOffset = errors.New("align: offset out of range")

	// ErrIdle is returned for operations that need a loaded script.
	ErrIdle = errors.New("align: no script loaded")
)

// Strategy names the aligner whose candidate produced a result.
type Strategy string

const (
	StrategyNone Strategy = "none"
	StrategyChar Strategy = "char"
	StrategyWord Strategy = "word"
	StrategyTie  Strategy = "tie"
)

// Result describes the effect of one transcript update.
type Result struct {
	// Offset is the recognized offset after the update.
	Offset int
	// Advanced is true when Offset moved forward.
	Advanced bool
	// Stale is true when the update carried an old generation and was dropped.
	Stale bool
	// Ignored is true when the session was not active.
	Ignored bool
	// Char and Word are the suffix-relative candidates of each strategy.
	Char, Word int
	// Winner names the strategy that produced the larger candidate.
	Winner Strategy
}

// Session holds the alignment state of one reading session. It is not safe
// for concurrent use; exactly one goroutine may call its methods.
type Session struct {
	aligner *Aligner

	script     *Script
	state      State
	matchStart int
	recognized int
	retries    int
	generation uint64
}

// NewSession returns an idle [Session] that aligns with a. A nil a selects the
// default [Aligner].
func NewSession(a *Aligner) *Session {
	if a == nil {
		a = defaultAligner
	}
	return &Session{aligner: a}
}

// SetAligner replaces the aligner used for subsequent updates.
func (s *Session) SetAligner(a *Aligner) {
	if a != nil {
		s.aligner = a
	}
}

// Start loads a new script and begins a fresh generation. Results from any
// earlier generation are discarded from here on.
func (s *Session) Start(script *Script) uint64 {
	if script == nil {
		script = NewScript("")
	}
	s.script = script
	s.matchStart = 0
	s.recognized = 0
	s.retries = 0
	s.generation++
	s.state = StateActive
	if script.Len() == 0 {
		s.state = StateDone
	}
	return s.generation
}

// Reset drops the script and returns to [StateIdle].
func (s *Session) Reset() {
	s.script = nil
	s.matchStart = 0
	s.recognized = 0
	s.retries = 0
	s.generation++
	s.state = StateIdle
}

// Update matches spoken against the unconsumed script suffix. gen must be the
// generation the transcript was produced under; older generations are a
// no-op. The recognized offset only ever moves forward.
func (s *Session) Update(gen uint64, spoken string) Result {
	res := Result{Offset: s.recognized, Winner: StrategyNone}
	if gen != s.generation {
		res.Stale = true
		return res
	}
	if s.state != StateActive {
		res.Ignored = true
		return res
	}

	suffix := s.script.Suffix(s.matchStart)
	res.Char = s.aligner.Chars(suffix, spoken)
	res.Word = s.aligner.Words(suffix, spoken)
	switch {
	case res.Char > res.Word:
		res.Winner = StrategyChar
	case res.Word > res.Char:
		res.Winner = StrategyWord
	case res.Char > 0:
		res.Winner = StrategyTie
	}

	candidate := s.matchStart + max(res.Char, res.Word)
	if candidate > s.recognized {
		s.recognized = min(candidate, s.script.Len())
		res.Offset = s.recognized
		res.Advanced = true
		if s.recognized == s.script.Len() {
			s.state = StateDone
		}
	}
	return res
}

// JumpTo moves both the match window and the recognized offset to offset and
// clears the retry count. The generation changes so that results of the
// recognition pass that was listening before the jump are discarded. The
// listening state is kept, except that a finished session becomes active
// again when offset is before the end.
func (s *Session) JumpTo(offset int) error {
	if s.state == StateIdle {
		return ErrIdle
	}
	if offset < 0 || offset > s.script.Len() {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidOffset, offset, s.script.Len())
	}
	s.matchStart = offset
	s.recognized = offset
	s.retries = 0
	s.generation++
	switch {
	case s.state == StateDone && offset < s.script.Len():
		s.state = StateActive
	case s.state == StateActive && offset == s.script.Len():
		s.state = StateDone
	}
	return nil
}

// Pause stops matching. Updates are ignored until [Session.Resume].
func (s *Session) Pause() {
	if s.state == StateActive {
		s.state = StatePaused
	}
}

// Resume restarts matching from the current recognized offset and clears the
// retry count.
func (s *Session) Resume() uint64 {
	s.retries = 0
	return s.rebase()
}

// Rebase restarts matching from the current recognized offset without
// touching the retry count. It is used when a single utterance grows too long
// to be matched afresh on every update.
func (s *Session) Rebase() uint64 {
	return s.rebase()
}

// Retry records a failed recognition pass and rebases the match window for
// the next one. It returns the number of consecutive failures so far.
func (s *Session) Retry() int {
	s.retries++
	s.rebase()
	return s.retries
}

func (s *Session) rebase() uint64 {
	if s.state == StateIdle {
		return s.generation
	}
	s.matchStart = s.recognized
	s.generation++
	if s.state == StatePaused {
		s.state = StateActive
	}
	return s.generation
}

// Advance moves the recognized offset n runes forward, clamped to the script
// length, and keeps the match window at the same position. It drives the
// timer-based prompter modes. It reports whether the offset moved.
func (s *Session) Advance(n int) bool {
	if s.state != StateActive || n <= 0 {
		return false
	}
	s.recognized = min(s.recognized+n, s.script.Len())
	s.matchStart = s.recognized
	if s.recognized == s.script.Len() {
		s.state = StateDone
	}
	return true
}

// Script returns the loaded script, or nil when idle.
func (s *Session) Script() *Script { return s.script }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Recognized returns the externally visible offset.
func (s *Session) Recognized() int { return s.recognized }

// MatchStart returns the offset matching currently resumes from.
func (s *Session) MatchStart() int { return s.matchStart }

// Generation returns the current generation tag.
func (s *Session) Generation() uint64 { return s.generation }

// Retries returns the number of consecutive failed recognition passes.
func (s *Session) Retries() int { return s.retries }
