// Package factory resolves a configured backend kind into a lock.Service.
package factory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalbasit/distlock/pkg/lock"
	"github.com/kalbasit/distlock/pkg/lock/local"
	"github.com/kalbasit/distlock/pkg/lock/redis"
	"github.com/kalbasit/distlock/pkg/lock/redlock"
	"github.com/kalbasit/distlock/pkg/lock/zookeeper"
)

// Kind names a lock backend.
type Kind string

// Supported backends.
const (
	KindLocal     Kind = lock.BackendLocal
	KindRedis     Kind = lock.BackendRedis
	KindRedlock   Kind = lock.BackendRedlock
	KindZooKeeper Kind = lock.BackendZooKeeper
)

// ErrUnknownKind is returned for an unsupported backend name.
var ErrUnknownKind = errors.New("unknown lock backend")

// Kinds returns every supported backend.
func Kinds() []Kind {
	return []Kind{KindLocal, KindRedis, KindRedlock, KindZooKeeper}
}

// ParseKind parses a backend name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))

	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config selects a backend and carries the settings of every backend; only the
// selected one is read.
type Config struct {
	Kind      Kind
	Retry     lock.RetryConfig
	Redis     redis.Config
	Redlock   redlock.Config
	ZooKeeper zookeeper.Config
}

// New builds the backend selected by cfg.Kind. Connection and topology checks
// run here, so a returned Service is ready to use.
func New(ctx context.Context, cfg Config) (lock.Service, error) {
	switch cfg.Kind {
	case KindLocal:
		return local.NewLocker(cfg.Retry), nil
	case KindRedis:
		l, err := redis.NewLocker(ctx, cfg.Redis, cfg.Retry)
		if err != nil {
			return nil, fmt.Errorf("error creating the redis lock backend: %w", err)
		}

		return l, nil
	case KindRedlock:
		l, err := redlock.NewLocker(ctx, cfg.Redlock, cfg.Retry)
		if err != nil {
			return nil, fmt.Errorf("error creating the redlock lock backend: %w", err)
		}

		return l, nil
	case KindZooKeeper:
		l, err := zookeeper.NewLocker(ctx, cfg.ZooKeeper, cfg.Retry)
		if err != nil {
			return nil, fmt.Errorf("error creating the zookeeper lock backend: %w", err)
		}

		return l, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
