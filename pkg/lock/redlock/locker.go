// Package redlock implements lock.Locker with the Redlock algorithm over a set
// of independent Redis masters.
//
// A lock is held once a majority of the nodes accepted the owner's token. It
// keeps the token and TTL semantics of the single-node Redis backend while
// tolerating the loss of a minority of nodes.
package redlock

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	goredislib "github.com/go-redsync/redsync/v4/redis/goredis/v9"

	"github.com/kalbasit/distlock/pkg/circuitbreaker"
	"github.com/kalbasit/distlock/pkg/lock"

	redislock "github.com/kalbasit/distlock/pkg/lock/redis"
)

// Errors returned by Redlock operations.
var (
	ErrNoRedisAddrs            = errors.New("at least one Redis address is required")
	ErrInsufficientNodesQuorum = errors.New("insufficient Redis nodes for quorum")
	ErrCircuitBreakerOpen      = errors.New("circuit breaker open: Redis is unavailable")
)

// Locker implements lock.Service using Redlock.
type Locker struct {
	clients     []*redis.Client
	redsync     *redsync.Redsync
	keyPrefix   string
	retryConfig lock.RetryConfig

	// circuitBreaker tracks Redis health
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewLocker connects to every node in cfg. It fails unless a quorum of the
// nodes is reachable and none of them is part of a Redis Cluster.
func NewLocker(ctx context.Context, cfg Config, retryCfg lock.RetryConfig) (*Locker, error) {
	if len(cfg.Addrs) == 0 {
		return nil, ErrNoRedisAddrs
	}

	clients := make([]*redis.Client, 0, len(cfg.Addrs))
	pools := make([]redsyncredis.Pool, 0, len(cfg.Addrs))

	closeAll := func() {
		for _, client := range clients {
			_ = client.Close()
		}
	}

	var firstErr error

	for _, addr := range cfg.Addrs {
		opts := &redis.Options{
			Addr:     addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}

		if cfg.UseTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}

		client := redis.NewClient(opts)

		if err := redislock.CheckTopology(ctx, client); err != nil {
			_ = client.Close()

			if errors.Is(err, redislock.ErrClusterUnsupported) {
				closeAll()

				return nil, fmt.Errorf("node %s: %w", addr, err)
			}

			if firstErr == nil {
				firstErr = err
			}

			zerolog.Ctx(ctx).Warn().
				Err(err).
				Str("addr", addr).
				Msg("failed to connect to Redis node")

			continue
		}

		clients = append(clients, client)
		pools = append(pools, goredislib.NewPool(client))
	}

	// Check if we have a quorum (majority) of nodes
	quorum := len(cfg.Addrs)/2 + 1
	if len(pools) < quorum {
		closeAll()

		if firstErr != nil {
			return nil, fmt.Errorf("%w (%d/%d): %w", ErrInsufficientNodesQuorum, len(pools), quorum, firstErr)
		}

		return nil, fmt.Errorf("%w: %d/%d", ErrInsufficientNodesQuorum, len(pools), quorum)
	}

	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}

	zerolog.Ctx(ctx).Info().
		Int("connected_nodes", len(clients)).
		Int("total_nodes", len(cfg.Addrs)).
		Msg("connected to Redis nodes for distributed locking")

	return &Locker{
		clients:        clients,
		redsync:        redsync.New(pools...),
		keyPrefix:      cfg.KeyPrefix,
		retryConfig:    retryCfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultTimeout),
	}, nil
}

// Backend returns the backend name.
func (l *Locker) Backend() string { return lock.BackendRedlock }

// TryAcquire implements lock.Locker.
func (l *Locker) TryAcquire(ctx context.Context, key, token string, wait, ttl time.Duration) (bool, error) {
	if err := lock.ValidateRequest(key, token, wait); err != nil {
		return false, err
	}

	ttl = lock.EffectiveTTL(ttl)
	lockKey := l.keyPrefix + key

	acquired, err := lock.Poll(ctx, l.retryConfig, lock.BackendRedlock, wait, func(ctx context.Context) (bool, error) {
		return l.tryOnce(ctx, lockKey, token, ttl)
	})
	if err != nil {
		lock.RecordLockAcquisition(ctx, lock.BackendRedlock, lock.ResultError)

		return false, fmt.Errorf("error acquiring lock %s: %w", key, err)
	}

	if !acquired {
		lock.RecordLockAcquisition(ctx, lock.BackendRedlock, lock.ResultContention)

		zerolog.Ctx(ctx).Debug().
			Str("key", key).
			Dur("wait", wait).
			Msg("distributed lock is held elsewhere")

		return false, nil
	}

	lock.RecordLockAcquisition(ctx, lock.BackendRedlock, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Msg("acquired distributed lock")

	return true, nil
}

func (l *Locker) tryOnce(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	if !l.circuitBreaker.AllowRequest() {
		return false, ErrCircuitBreakerOpen
	}

	mutex := l.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(ttl),
		redsync.WithTries(1), // We handle retries ourselves
		redsync.WithGenValueFunc(func() (string, error) { return token, nil }),
	)

	err := mutex.LockContext(ctx)
	if err == nil {
		l.circuitBreaker.RecordSuccess()

		return true, nil
	}

	if isLockAlreadyTakenError(err) {
		l.circuitBreaker.RecordSuccess()

		return false, nil
	}

	if redislock.IsConnectionError(err) {
		l.circuitBreaker.RecordFailure()
	}

	return false, err
}

// Release implements lock.Locker.
func (l *Locker) Release(ctx context.Context, key, token string) {
	if key == "" || token == "" {
		return
	}

	mutex := l.redsync.NewMutex(l.keyPrefix+key, redsync.WithValue(token))

	ok, err := mutex.UnlockContext(ctx)

	switch {
	case errors.Is(err, redsync.ErrLockAlreadyExpired) || (err == nil && !ok):
		lock.RecordLockRelease(ctx, lock.BackendRedlock, lock.ReleaseResultNotHeld)

		zerolog.Ctx(ctx).Debug().
			Str("key", key).
			Msg("distributed lock not held by this token, nothing to release")
	case err != nil:
		lock.RecordLockRelease(ctx, lock.BackendRedlock, lock.ReleaseResultError)

		// Don't fail here - lock will expire via TTL
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("key", key).
			Msg("failed to release distributed lock (will expire via TTL)")
	default:
		lock.RecordLockRelease(ctx, lock.BackendRedlock, lock.ReleaseResultReleased)

		zerolog.Ctx(ctx).Debug().
			Str("key", key).
			Msg("released distributed lock")
	}
}

// Close closes the connections to every node.
func (l *Locker) Close() error {
	var errs []error

	for _, client := range l.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// isLockAlreadyTakenError reports whether err only says that the lock is held
// by someone else.
func isLockAlreadyTakenError(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}

	var taken *redsync.ErrTaken

	return errors.As(err, &taken)
}
