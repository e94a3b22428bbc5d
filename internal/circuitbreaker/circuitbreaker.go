package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Call while the circuit is open.
var ErrOpen = errors.New("circuit breaker open")

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// State is the circuit breaker state (Closed, Open, HalfOpen).
type State int

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker parameters.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration // how long the circuit stays open before a probe
	Component        string

	// IsFailure decides whether an error returned by fn counts against the
	// circuit. Nil means every non-nil error counts.
	IsFailure func(error) bool

	// OnStateChange is called after a transition, outside the breaker lock.
	OnStateChange func(component string, from, to State)
}

// CircuitBreaker fails fast after repeated upstream failures and lets probe
// calls through once the open timeout has passed. It never retries.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	cfg             Config
	now             func() time.Time
}

// New creates a CircuitBreaker, filling zero thresholds with defaults (5 failures, 2 successes, 30s).
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{state: StateClosed, cfg: cfg, now: time.Now}
}

// Call runs fn when the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cb.mu.Lock()
	var transitions []transition
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) < cb.cfg.Timeout {
			cb.mu.Unlock()
			return ErrOpen
		}
		transitions = append(transitions, cb.setState(StateHalfOpen))
		cb.successCount = 0
	}
	cb.mu.Unlock()
	cb.notify(transitions)

	err := fn(ctx)
	cb.notify(cb.record(err))
	return err
}

type transition struct{ from, to State }

func (cb *CircuitBreaker) record(err error) []transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.counts(err) {
		cb.failureCount++
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.cfg.FailureThreshold {
			cb.failureCount = 0
			if cb.state != StateOpen {
				return []transition{cb.setState(StateOpen)}
			}
		}
		return nil
	}

	cb.failureCount = 0
	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.cfg.SuccessThreshold {
			cb.successCount = 0
			return []transition{cb.setState(StateClosed)}
		}
	}
	return nil
}

func (cb *CircuitBreaker) counts(err error) bool {
	if cb.cfg.IsFailure == nil {
		return true
	}
	return cb.cfg.IsFailure(err)
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) transition {
	t := transition{from: cb.state, to: to}
	cb.state = to
	return t
}

func (cb *CircuitBreaker) notify(ts []transition) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	for _, t := range ts {
		cb.cfg.OnStateChange(cb.cfg.Component, t.from, t.to)
	}
}

// State returns the current state (for metrics).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
