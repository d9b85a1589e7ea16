package errors

import (
	stderrors "errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed is the normal state where requests are allowed.
	BreakerClosed BreakerState = iota
	// BreakerOpen is when the circuit is tripped and requests are blocked.
	BreakerOpen
	// BreakerHalfOpen is when the circuit is testing if the upstream recovered.
	BreakerHalfOpen
)

// String returns a string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker fails fast once an upstream capability has failed repeatedly,
// instead of paying a timeout on every retrieval call.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given name.
// Default: 5 failures, 30 second reset timeout.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		state:        BreakerClosed,
	}
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState returns the state, checking for transition to half-open.
// Caller must hold cb.mu.
func (cb *CircuitBreaker) currentState() BreakerState {
	if cb.state == BreakerOpen && time.Since(cb.lastFailure) > cb.resetTimeout {
		return BreakerHalfOpen
	}
	return cb.state
}

// Do runs fn through the circuit breaker.
// Returns ErrCircuitOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Do(fn func() error) error {
	cb.mu.Lock()
	state := cb.currentState()
	if state == BreakerOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()
		if cb.failures >= cb.maxFailures || state == BreakerHalfOpen {
			cb.state = BreakerOpen
		}
		return err
	}

	cb.failures = 0
	cb.state = BreakerClosed
	return nil
}
