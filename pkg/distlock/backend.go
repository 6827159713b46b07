package distlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/kalbasit/distlock/pkg/lock"
	"github.com/kalbasit/distlock/pkg/lock/factory"
	"github.com/kalbasit/distlock/pkg/lock/redis"
	"github.com/kalbasit/distlock/pkg/lock/redlock"
	"github.com/kalbasit/distlock/pkg/lock/zookeeper"
)

// ErrNegativeSpinAttempts is returned when --lock-retry-spin-attempts is negative.
var ErrNegativeSpinAttempts = errors.New("lock-retry-spin-attempts must not be negative")

func lockFlags(flagSources flagSourcesFn) []cli.Flag {
	defaultRetry := lock.DefaultRetryConfig()

	return []cli.Flag{
		&cli.StringFlag{
			Name: "lock-backend",
			Usage: "Lock backend to use: 'local' (single process), 'redis' (single Redis server), " +
				"'redlock' (quorum of independent Redis masters) or 'zookeeper' (ephemeral nodes)",
			Sources: flagSources("lock.backend", "LOCK_BACKEND"),
			Value:   string(factory.KindRedis),
			Validator: func(s string) error {
				_, err := factory.ParseKind(s)

				return err
			},
		},

		// Redis Configuration
		&cli.StringFlag{
			Name:    "lock-redis-addr",
			Usage:   "Redis server address (e.g., localhost:6379)",
			Sources: flagSources("lock.redis.addr", "LOCK_REDIS_ADDR"),
			Value:   "localhost:6379",
		},
		&cli.StringFlag{
			Name:    "lock-redis-username",
			Usage:   "Redis username for authentication (for Redis ACL), also used by redlock",
			Sources: flagSources("lock.redis.username", "LOCK_REDIS_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "lock-redis-password",
			Usage:   "Redis password for authentication, also used by redlock",
			Sources: flagSources("lock.redis.password", "LOCK_REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:    "lock-redis-db",
			Usage:   "Redis database number (0-15), also used by redlock",
			Sources: flagSources("lock.redis.db", "LOCK_REDIS_DB"),
			Value:   0,
		},
		&cli.BoolFlag{
			Name:    "lock-redis-use-tls",
			Usage:   "Use TLS for Redis connections, also used by redlock",
			Sources: flagSources("lock.redis.use-tls", "LOCK_REDIS_USE_TLS"),
		},
		&cli.IntFlag{
			Name:    "lock-redis-pool-size",
			Usage:   "Redis connection pool size, per node for redlock",
			Sources: flagSources("lock.redis.pool-size", "LOCK_REDIS_POOL_SIZE"),
			Value:   10,
		},
		&cli.StringFlag{
			Name:    "lock-redis-key-prefix",
			Usage:   "Prefix for all Redis lock keys",
			Sources: flagSources("lock.redis.key-prefix", "LOCK_REDIS_KEY_PREFIX"),
			Value:   redis.DefaultKeyPrefix,
		},

		// Redlock Configuration
		&cli.StringSliceFlag{
			Name:    "lock-redlock-addrs",
			Usage:   "Addresses of the independent Redis masters (at least three for a meaningful quorum)",
			Sources: flagSources("lock.redlock.addrs", "LOCK_REDLOCK_ADDRS"),
		},
		&cli.StringFlag{
			Name:    "lock-redlock-key-prefix",
			Usage:   "Prefix for all Redlock keys",
			Sources: flagSources("lock.redlock.key-prefix", "LOCK_REDLOCK_KEY_PREFIX"),
			Value:   redlock.DefaultKeyPrefix,
		},

		// ZooKeeper Configuration
		&cli.StringSliceFlag{
			Name:    "lock-zookeeper-servers",
			Usage:   "ZooKeeper ensemble members (e.g., zk1:2181)",
			Sources: flagSources("lock.zookeeper.servers", "LOCK_ZOOKEEPER_SERVERS"),
		},
		&cli.DurationFlag{
			Name:    "lock-zookeeper-session-timeout",
			Usage:   "ZooKeeper session timeout; locks of a crashed holder disappear once it elapses",
			Sources: flagSources("lock.zookeeper.session-timeout", "LOCK_ZOOKEEPER_SESSION_TIMEOUT"),
			Value:   zookeeper.DefaultSessionTimeout,
		},
		&cli.DurationFlag{
			Name:    "lock-zookeeper-connect-timeout",
			Usage:   "How long to wait for a ZooKeeper session at startup",
			Sources: flagSources("lock.zookeeper.connect-timeout", "LOCK_ZOOKEEPER_CONNECT_TIMEOUT"),
			Value:   zookeeper.DefaultConnectTimeout,
		},
		&cli.StringFlag{
			Name:    "lock-zookeeper-root-path",
			Usage:   "Parent node of the lock nodes; created if missing",
			Sources: flagSources("lock.zookeeper.root-path", "LOCK_ZOOKEEPER_ROOT_PATH"),
			Value:   zookeeper.DefaultRootPath,
		},

		// Retry Configuration
		&cli.IntFlag{
			Name:    "lock-retry-spin-attempts",
			Usage:   "Number of retries that only yield the processor before sleeping",
			Sources: flagSources("lock.retry.spin-attempts", "LOCK_RETRY_SPIN_ATTEMPTS"),
			Value:   defaultRetry.SpinAttempts,
		},
		&cli.DurationFlag{
			Name:    "lock-retry-base-delay",
			Usage:   "Constant part of the sleep between retries",
			Sources: flagSources("lock.retry.base-delay", "LOCK_RETRY_BASE_DELAY"),
			Value:   defaultRetry.BaseDelay,
		},
		&cli.DurationFlag{
			Name:    "lock-retry-step-delay",
			Usage:   "Added to the sleep between retries once per failed retry",
			Sources: flagSources("lock.retry.step-delay", "LOCK_RETRY_STEP_DELAY"),
			Value:   defaultRetry.StepDelay,
		},
		&cli.DurationFlag{
			Name:    "lock-retry-max-delay",
			Usage:   "Upper bound of the sleep between retries (0 disables the bound)",
			Sources: flagSources("lock.retry.max-delay", "LOCK_RETRY_MAX_DELAY"),
			Value:   defaultRetry.MaxDelay,
		},
		&cli.BoolFlag{
			Name:    "lock-retry-jitter",
			Usage:   "Add random jitter to the sleep between retries",
			Sources: flagSources("lock.retry.jitter", "LOCK_RETRY_JITTER"),
			Value:   defaultRetry.Jitter,
		},
	}
}

// lockConfig maps the lock flags of cmd to a factory.Config.
func lockConfig(cmd *cli.Command) (factory.Config, error) {
	kind, err := factory.ParseKind(cmd.String("lock-backend"))
	if err != nil {
		return factory.Config{}, err
	}

	spinAttempts := cmd.Int("lock-retry-spin-attempts")
	if spinAttempts < 0 {
		return factory.Config{}, fmt.Errorf("%w: %d", ErrNegativeSpinAttempts, spinAttempts)
	}

	return factory.Config{
		Kind: kind,
		Retry: lock.RetryConfig{
			SpinAttempts: spinAttempts,
			BaseDelay:    cmd.Duration("lock-retry-base-delay"),
			StepDelay:    cmd.Duration("lock-retry-step-delay"),
			MaxDelay:     cmd.Duration("lock-retry-max-delay"),
			Jitter:       cmd.Bool("lock-retry-jitter"),
			JitterFactor: lock.DefaultJitterFactor,
		},
		Redis: redis.Config{
			Addr:      cmd.String("lock-redis-addr"),
			Username:  cmd.String("lock-redis-username"),
			Password:  cmd.String("lock-redis-password"),
			DB:        cmd.Int("lock-redis-db"),
			UseTLS:    cmd.Bool("lock-redis-use-tls"),
			PoolSize:  cmd.Int("lock-redis-pool-size"),
			KeyPrefix: cmd.String("lock-redis-key-prefix"),
		},
		Redlock: redlock.Config{
			Addrs:     cmd.StringSlice("lock-redlock-addrs"),
			Username:  cmd.String("lock-redis-username"),
			Password:  cmd.String("lock-redis-password"),
			DB:        cmd.Int("lock-redis-db"),
			UseTLS:    cmd.Bool("lock-redis-use-tls"),
			PoolSize:  cmd.Int("lock-redis-pool-size"),
			KeyPrefix: cmd.String("lock-redlock-key-prefix"),
		},
		ZooKeeper: zookeeper.Config{
			Servers:        cmd.StringSlice("lock-zookeeper-servers"),
			SessionTimeout: cmd.Duration("lock-zookeeper-session-timeout"),
			ConnectTimeout: cmd.Duration("lock-zookeeper-connect-timeout"),
			RootPath:       cmd.String("lock-zookeeper-root-path"),
		},
	}, nil
}

func newLockService(ctx context.Context, cmd *cli.Command) (lock.Service, error) {
	cfg, err := lockConfig(cmd)
	if err != nil {
		return nil, err
	}

	svc, err := factory.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).
		Info().
		Str("backend", svc.Backend()).
		Str("servers", lockServers(cfg)).
		Msg("lock backend ready")

	return svc, nil
}

func lockServers(cfg factory.Config) string {
	switch cfg.Kind {
	case factory.KindRedis:
		return cfg.Redis.Addr
	case factory.KindRedlock:
		return strings.Join(cfg.Redlock.Addrs, ",")
	case factory.KindZooKeeper:
		return strings.Join(cfg.ZooKeeper.Servers, ",")
	case factory.KindLocal:
		return ""
	}

	return ""
}

// jobFlags are the flags describing the locked command, shared by run and cron.
func jobFlags(flagSources flagSourcesFn) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "key",
			Usage:    "Name of the lock; every instance using the same key excludes the others",
			Sources:  flagSources("job.key", "JOB_KEY"),
			Required: true,
			Validator: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return lock.ErrEmptyKey
				}

				return nil
			},
		},
		&cli.StringSliceFlag{
			Name:    "key-part",
			Usage:   "Extra key components, joined to --key with '" + lock.KeySeparator + "'",
			Sources: flagSources("job.key-parts", "JOB_KEY_PARTS"),
		},
		&cli.DurationFlag{
			Name:    "wait",
			Usage:   "How long to keep trying to acquire the lock (0 means a single attempt)",
			Sources: flagSources("job.wait", "JOB_WAIT"),
			Validator: func(d time.Duration) error {
				if d < 0 {
					return lock.ErrNegativeWait
				}

				return nil
			},
		},
		&cli.DurationFlag{
			Name: "ttl",
			Usage: "Lease of the lock; it expires on its own after this long, so it should exceed the " +
				"command's runtime (ignored by the zookeeper backend)",
			Sources: flagSources("job.ttl", "JOB_TTL"),
			Value:   DefaultJobTTL,
		},
		&cli.IntFlag{
			Name:    "not-acquired-exit-code",
			Usage:   "Exit code when the lock is held elsewhere",
			Sources: flagSources("job.not-acquired-exit-code", "JOB_NOT_ACQUIRED_EXIT_CODE"),
			Value:   DefaultNotAcquiredExitCode,
		},
	}
}
