// Package circuitbreaker stops calling a failing dependency (SES, S3) for a
// cool-down period and then lets a few trial calls through.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrCircuitOpen is returned without calling the dependency.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTrialLimit is returned when every half-open trial slot is taken.
// It wraps ErrCircuitOpen so callers only need one check.
var ErrTrialLimit = fmt.Errorf("%w: trial limit reached", ErrCircuitOpen)

// Settings configures a breaker. Zero fields take the defaults below.
type Settings struct {
	Name string

	// Trip opens the breaker after this many consecutive failures (default 5).
	Trip int

	// Recover closes a half-open breaker after this many consecutive
	// successful trials (default 1).
	Recover int

	// Cooldown is how long the breaker stays open (default 30s).
	Cooldown time.Duration

	// Trials is the number of calls let through while half-open (default 1).
	Trials int

	// Counts decides whether an error counts against the dependency.
	// Nil counts every error.
	Counts func(error) bool

	// OnChange observes transitions. It runs under the breaker lock and
	// must not call back into the breaker.
	OnChange func(name string, from, to State)

	// Now overrides the clock. Used in tests.
	Now func() time.Time
}

func (s *Settings) applyDefaults() {
	if s.Trip <= 0 {
		s.Trip = 5
	}
	if s.Recover <= 0 {
		s.Recover = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trials <= 0 {
		s.Trials = 1
	}
	if s.Now == nil {
		s.Now = time.Now
	}
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	settings Settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
}

// New creates a closed breaker.
func New(settings Settings) *CircuitBreaker {
	settings.applyDefaults()
	return &CircuitBreaker{settings: settings}
}

// Execute calls fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.record(trial, err)
	return err
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.settings.Now().Sub(cb.openedAt) < cb.settings.Cooldown {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.settings.Trials {
			return false, ErrTrialLimit
		}
		cb.inFlight++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial && cb.inFlight > 0 {
		cb.inFlight--
	}

	failed := err != nil && (cb.settings.Counts == nil || cb.settings.Counts(err))
	if !failed {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.settings.Recover {
				cb.transition(StateClosed)
			}
		}
		return
	}

	cb.successes = 0
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.settings.Trip {
		cb.transition(StateOpen)
	}
}

// transition resets the counters; the caller holds mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures, cb.successes, cb.inFlight = 0, 0, 0
	if to == StateOpen {
		cb.openedAt = cb.settings.Now()
	}
	if cb.settings.OnChange != nil {
		cb.settings.OnChange(cb.settings.Name, from, to)
	}
}

// State reports the current position. An open breaker whose cool-down has
// elapsed still reports open until the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.settings.Name }

// ─────────────────────────────────────────────────────────────────────────────
// Presets
// ─────────────────────────────────────────────────────────────────────────────

// EmailBreaker guards the SES channel. A rejected message counts too: a run
// of rejections usually means the sender identity is broken.
func EmailBreaker(onChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:     "ses",
		Trip:     3,
		Recover:  2,
		Cooldown: time.Minute,
		Trials:   1,
		OnChange: onChange,
	})
}

// StorageBreaker guards proof uploads to S3.
func StorageBreaker(onChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:     "s3",
		Trip:     5,
		Recover:  1,
		Cooldown: 30 * time.Second,
		Trials:   2,
		OnChange: onChange,
	})
}
