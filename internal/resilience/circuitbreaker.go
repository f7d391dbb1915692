// Package resilience provides circuit breaker and provider failover primitives.
//
// [CircuitBreaker] is a three-state breaker (closed, open, half-open) that
// protects callers from a recogniser that keeps failing. [FallbackGroup]
// composes several providers of one type, each behind its own breaker, so a
// failing primary is bypassed in favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards all calls.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning to
	// half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes required to close the
	// breaker again. Default: 1.
	HalfOpenMax int

	// Now returns the current time. Default: [time.Now].
	Now func() time.Time

	// OnStateChange, if set, is called after every transition. It runs
	// without the breaker's lock held.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	now           func() time.Time
	onStateChange func(name string, from, to State)

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		now:           cfg.Now,
		onStateChange: cfg.OnStateChange,
		state:         StateClosed,
	}
}

// Name returns the breaker's label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn. In the half-open state at most
// HalfOpenMax probes run concurrently.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, transition, err := cb.admit()
	cb.notify(transition)
	if err != nil {
		return err
	}

	callErr := fn()

	cb.notify(cb.record(probe, callErr))
	return callErr
}

// transition is a pending OnStateChange notification. from == to means none.
type transition struct{ from, to State }

func (cb *CircuitBreaker) admit() (probe bool, t transition, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	t = transition{cb.state, cb.state}
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, t, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes, cb.probeSuccesses = 0, 0
		t.to = StateHalfOpen
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return false, t, ErrCircuitOpen
		}
		cb.probes++
		return true, t, nil
	}
	return false, t, nil
}

func (cb *CircuitBreaker) record(probe bool, err error) transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	t := transition{cb.state, cb.state}
	switch {
	case err != nil && probe:
		cb.trip()
	case err != nil:
		cb.consecutiveFail++
		if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
			cb.trip()
		}
	case probe:
		cb.probes--
		cb.probeSuccesses++
		if cb.state == StateHalfOpen && cb.probeSuccesses >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
		}
	default:
		cb.consecutiveFail = 0
	}
	t.to = cb.state
	return t
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.consecutiveFail = 0
	cb.probes, cb.probeSuccesses = 0, 0
}

func (cb *CircuitBreaker) notify(t transition) {
	if t.from == t.to {
		return
	}
	slog.Info("circuit breaker state changed", "name", cb.name, "from", t.from, "to", t.to)
	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, t.from, t.to)
	}
}

// State returns the current [State] of the breaker. An open breaker whose
// reset timeout has elapsed reports [StateHalfOpen]; the transition itself
// happens on the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed], clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := transition{cb.state, StateClosed}
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.probes, cb.probeSuccesses = 0, 0
	cb.mu.Unlock()
	cb.notify(t)
}
