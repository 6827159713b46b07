// Package local provides an in-process lock backend.
//
// It keeps the token and TTL semantics of the distributed backends in a map
// guarded by a mutex, which makes it useful for development and tests. It does
// not exclude other processes.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalbasit/distlock/pkg/lock"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// Locker implements lock.Service in memory.
type Locker struct {
	mu      sync.Mutex
	entries map[string]entry

	now         func() time.Time
	retryConfig lock.RetryConfig
}

// NewLocker creates a new local locker.
func NewLocker(retryCfg lock.RetryConfig) *Locker {
	return &Locker{
		entries:     make(map[string]entry),
		now:         time.Now,
		retryConfig: retryCfg,
	}
}

// Backend returns the backend name.
func (l *Locker) Backend() string { return lock.BackendLocal }

// TryAcquire implements lock.Locker.
func (l *Locker) TryAcquire(ctx context.Context, key, token string, wait, ttl time.Duration) (bool, error) {
	if err := lock.ValidateRequest(key, token, wait); err != nil {
		return false, err
	}

	ttl = lock.EffectiveTTL(ttl)

	acquired, err := lock.Poll(ctx, l.retryConfig, lock.BackendLocal, wait, func(context.Context) (bool, error) {
		return l.setIfAbsent(key, token, ttl), nil
	})
	if err != nil {
		lock.RecordLockAcquisition(ctx, lock.BackendLocal, lock.ResultError)

		return false, err
	}

	if !acquired {
		lock.RecordLockAcquisition(ctx, lock.BackendLocal, lock.ResultContention)

		return false, nil
	}

	lock.RecordLockAcquisition(ctx, lock.BackendLocal, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Msg("acquired local lock")

	return true, nil
}

func (l *Locker) setIfAbsent(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if e, ok := l.entries[key]; ok && now.Before(e.expiresAt) {
		return false
	}

	l.entries[key] = entry{token: token, expiresAt: now.Add(ttl)}

	return true
}

// Release implements lock.Locker.
func (l *Locker) Release(ctx context.Context, key, token string) {
	l.mu.Lock()

	e, ok := l.entries[key]
	held := ok && e.token == token && l.now().Before(e.expiresAt)

	if held || (ok && !l.now().Before(e.expiresAt)) {
		delete(l.entries, key)
	}

	l.mu.Unlock()

	if !held {
		lock.RecordLockRelease(ctx, lock.BackendLocal, lock.ReleaseResultNotHeld)

		return
	}

	lock.RecordLockRelease(ctx, lock.BackendLocal, lock.ReleaseResultReleased)

	zerolog.Ctx(ctx).Debug().
		Str("key", key).
		Msg("released local lock")
}

// Close drops every lock.
func (l *Locker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.entries)

	return nil
}
