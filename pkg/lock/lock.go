// Package lock provides cross-process mutual exclusion backed by an external
// coordination service.
//
// A lock is identified by a string key. Backends (Redis, Redlock, ZooKeeper and an
// in-process local backend) implement Locker. Execute wraps any Locker with the
// acquire, run and release protocol so callers never have to pair TryAcquire and
// Release by hand.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is the lease applied when a caller passes a non-positive TTL.
const DefaultTTL = 5 * time.Second

var (
	// ErrNotAcquired is returned by Execute when the lock could not be obtained
	// within the wait budget and no failure callback was supplied.
	ErrNotAcquired = errors.New("lock not acquired")

	// ErrEmptyKey is returned when a lock key is empty.
	ErrEmptyKey = errors.New("lock key must not be empty")

	// ErrEmptyToken is returned when an ownership token is empty.
	ErrEmptyToken = errors.New("lock token must not be empty")

	// ErrNegativeWait is returned when the wait budget is negative.
	ErrNegativeWait = errors.New("lock wait budget must not be negative")

	// ErrNilCallback is returned by Execute when no success callback is given.
	ErrNilCallback = errors.New("success callback must not be nil")
)

// Locker is the contract every lock backend satisfies.
//
// Ownership is exclusive per key: at most one TryAcquire call may return true for
// a key until the holder releases it, its lease expires or its session ends. The
// guarantee is enforced by the backing store, never by process-local state.
type Locker interface {
	// TryAcquire attempts to take the lock for key on behalf of token.
	//
	// The first attempt is immediate. When it fails and wait is positive the
	// attempt is repeated with backoff until it succeeds or wait elapses, so the
	// call never blocks much longer than wait. ttl bounds how long the lock lives
	// if it is never released; backends without leases ignore it.
	//
	// It returns true only if ownership was established during this call. Failures
	// to talk to the backing store are returned as errors and are never reported
	// as plain contention.
	TryAcquire(ctx context.Context, key, token string, wait, ttl time.Duration) (bool, error)

	// Release gives up the lock for key if, and only if, it is still held under
	// token. Releasing a lock that is absent or held by someone else is a no-op.
	//
	// Release is best-effort: failures are logged and swallowed because the lease
	// or session will eventually free the lock anyway.
	Release(ctx context.Context, key, token string)
}

// Service is a Locker bound to a connection to its coordination service.
type Service interface {
	Locker

	// Backend returns the backend name used in logs and metrics.
	Backend() string

	// Close releases the underlying connection.
	Close() error
}

// ValidateRequest checks the arguments shared by every TryAcquire implementation.
func ValidateRequest(key, token string, wait time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	if token == "" {
		return ErrEmptyToken
	}

	if wait < 0 {
		return ErrNegativeWait
	}

	return nil
}

// EffectiveTTL returns ttl, or DefaultTTL when ttl is not positive.
func EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}

	return ttl
}
