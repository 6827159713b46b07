// Package redis implements lock.Locker on a single standalone Redis server.
//
// A lock is the key prefix+key holding the owner's token, written with
// SET NX PX so that it expires on its own after the TTL. Release runs a Lua
// compare-and-delete so a caller can only remove a lock it still owns.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kalbasit/distlock/pkg/circuitbreaker"
	"github.com/kalbasit/distlock/pkg/lock"
)

//nolint:gochecknoglobals
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements lock.Service using a standalone Redis server.
type Locker struct {
	client      redis.UniversalClient
	ownsClient  bool
	keyPrefix   string
	retryConfig lock.RetryConfig

	// circuitBreaker tracks Redis health
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewLocker connects to the server described by cfg and returns a Locker that
// owns the connection.
func NewLocker(ctx context.Context, cfg Config, retryCfg lock.RetryConfig) (*Locker, error) {
	if cfg.Addr == "" {
		return nil, ErrNoRedisAddr
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	l, err := NewLockerWithClient(ctx, client, cfg.KeyPrefix, retryCfg)
	if err != nil {
		_ = client.Close()

		return nil, err
	}

	l.ownsClient = true

	zerolog.Ctx(ctx).Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to Redis for distributed locking")

	return l, nil
}

// NewLockerWithClient returns a Locker using an existing client. The client is
// not closed by Close.
//
// Construction fails if the server is unreachable or is part of a cluster.
func NewLockerWithClient(
	ctx context.Context,
	client redis.UniversalClient,
	keyPrefix string,
	retryCfg lock.RetryConfig,
) (*Locker, error) {
	if err := CheckTopology(ctx, client); err != nil {
		return nil, err
	}

	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &Locker{
		client:         client,
		keyPrefix:      keyPrefix,
		retryConfig:    retryCfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultTimeout),
	}, nil
}

// Backend returns the backend name.
func (l *Locker) Backend() string { return lock.BackendRedis }

// TryAcquire implements lock.Locker.
func (l *Locker) TryAcquire(ctx context.Context, key, token string, wait, ttl time.Duration) (bool, error) {
	if err := lock.ValidateRequest(key, token, wait); err != nil {
		return false, err
	}

	ttl = lock.EffectiveTTL(ttl)
	lockKey := l.keyPrefix + key

	acquired, err := lock.Poll(ctx, l.retryConfig, lock.BackendRedis, wait, func(ctx context.Context) (bool, error) {
		return l.setIfAbsent(ctx, lockKey, token, ttl)
	})
	if err != nil {
		lock.RecordLockAcquisition(ctx, lock.BackendRedis, lock.ResultError)

		return false, fmt.Errorf("error acquiring lock %s: %w", key, err)
	}

	if !acquired {
		lock.RecordLockAcquisition(ctx, lock.BackendRedis, lock.ResultContention)

		zerolog.Ctx(ctx).Debug().
			Str("key", key).
			Dur("wait", wait).
			Msg("distributed lock is held elsewhere")

		return false, nil
	}

	lock.RecordLockAcquisition(ctx, lock.BackendRedis, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Msg("acquired distributed lock")

	return true, nil
}

func (l *Locker) setIfAbsent(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	if !l.circuitBreaker.AllowRequest() {
		return false, ErrCircuitBreakerOpen
	}

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		if IsConnectionError(err) {
			l.circuitBreaker.RecordFailure()
		}

		return false, err
	}

	l.circuitBreaker.RecordSuccess()

	return ok, nil
}

// Release implements lock.Locker.
func (l *Locker) Release(ctx context.Context, key, token string) {
	if key == "" || token == "" {
		return
	}

	deleted, err := releaseScript.Run(ctx, l.client, []string{l.keyPrefix + key}, token).Int64()
	if err != nil {
		lock.RecordLockRelease(ctx, lock.BackendRedis, lock.ReleaseResultError)

		// Don't fail here - lock will expire via TTL
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("key", key).
			Msg("failed to release distributed lock (will expire via TTL)")

		return
	}

	if deleted == 0 {
		lock.RecordLockRelease(ctx, lock.BackendRedis, lock.ReleaseResultNotHeld)

		zerolog.Ctx(ctx).Debug().
			Str("key", key).
			Msg("distributed lock not held by this token, nothing to release")

		return
	}

	lock.RecordLockRelease(ctx, lock.BackendRedis, lock.ReleaseResultReleased)

	zerolog.Ctx(ctx).Debug().
		Str("key", key).
		Msg("released distributed lock")
}

// Close closes the Redis client if this Locker created it.
func (l *Locker) Close() error {
	if !l.ownsClient {
		return nil
	}

	return l.client.Close()
}
