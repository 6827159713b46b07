// Package circuitbreaker guards calls to a coordination service so that a
// backend which keeps failing is not hammered while it recovers.
package circuitbreaker

import (
	"sync"
	"time"
)

const (
	// DefaultThreshold is the default number of consecutive failures before
	// the circuit breaker opens.
	DefaultThreshold = 5

	// DefaultTimeout is the default duration the circuit breaker stays open
	// before letting a probe request through.
	DefaultTimeout = 30 * time.Second
)

// State is the state of a circuit breaker.
type State int

const (
	// StateClosed lets every request through.
	StateClosed State = iota

	// StateOpen rejects requests until the timeout elapses.
	StateOpen

	// StateHalfOpen lets a single probe request through.
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
	default:
		return "unknown"
	}
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// CircuitBreaker opens after threshold consecutive failures and stays open for
// timeout, after which one probe request is allowed per timeout window.
type CircuitBreaker struct {
	mu sync.Mutex

	now func() time.Time

	failureCount int
	threshold    int
	timeout      time.Duration
	openedAt     time.Time
}

// New creates a new circuit breaker. Non-positive arguments select the defaults.
func New(threshold int, timeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cb := &CircuitBreaker{
		now:       time.Now,
		threshold: threshold,
		timeout:   timeout,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// RecordFailure counts a failed request and opens the circuit once the
// threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	if cb.failureCount >= cb.threshold {
		cb.openedAt = cb.now()
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.openedAt = time.Time{}
}

// AllowRequest reports whether a request may go through.
//
// Once the open window has elapsed a single probe is let through and the
// window restarts; its outcome decides whether the circuit closes or stays open.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.openedAt.IsZero() {
		return true
	}

	if cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.openedAt = cb.now()

		return true
	}

	return false
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case cb.openedAt.IsZero():
		return StateClosed
	case cb.now().Sub(cb.openedAt) >= cb.timeout:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

// IsOpen returns true unless the circuit is closed.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() != StateClosed
}
