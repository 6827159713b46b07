// Package zookeeper implements lock.Locker on a ZooKeeper ensemble.
//
// A lock is an ephemeral node at <root>/<key>. Creating it succeeds for exactly
// one session; everyone else gets "node exists". The node belongs to the
// session that created it, so it disappears when the holder releases it or when
// its session ends. Ownership tokens and TTLs are not used by this backend.
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog"

	"github.com/kalbasit/distlock/pkg/circuitbreaker"
	"github.com/kalbasit/distlock/pkg/lock"
)

// Locker implements lock.Service using ZooKeeper ephemeral nodes.
type Locker struct {
	conn        Conn
	rootPath    string
	retryConfig lock.RetryConfig

	// circuitBreaker tracks ZooKeeper health
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewLocker connects to the ensemble, waits for a session and makes sure the
// root path exists. Any failure closes the connection and is returned.
func NewLocker(ctx context.Context, cfg Config, retryCfg lock.RetryConfig) (*Locker, error) {
	if len(cfg.Servers) == 0 {
		return nil, ErrNoServers
	}

	cfg = cfg.withDefaults()

	if err := validateRootPath(cfg.RootPath); err != nil {
		return nil, err
	}

	logger := zerolog.Ctx(ctx).With().Str("backend", lock.BackendZooKeeper).Logger()

	conn, events, err := zk.Connect(cfg.Servers, cfg.SessionTimeout, zk.WithLogger(zkLogger{logger: logger}))
	if err != nil {
		return nil, fmt.Errorf("error connecting to ZooKeeper: %w", err)
	}

	if err := waitForSession(ctx, events, cfg.ConnectTimeout); err != nil {
		conn.Close()

		return nil, fmt.Errorf("error connecting to ZooKeeper %s: %w", strings.Join(cfg.Servers, ","), err)
	}

	go watchSession(logger, events)

	l, err := NewLockerWithConn(ctx, conn, cfg.RootPath, retryCfg)
	if err != nil {
		conn.Close()

		return nil, err
	}

	logger.Info().
		Strs("servers", cfg.Servers).
		Str("root_path", cfg.RootPath).
		Dur("session_timeout", cfg.SessionTimeout).
		Msg("connected to ZooKeeper for distributed locking")

	return l, nil
}

// NewLockerWithConn returns a Locker using an established connection and
// creates rootPath, and any missing parent, as persistent nodes.
func NewLockerWithConn(ctx context.Context, conn Conn, rootPath string, retryCfg lock.RetryConfig) (*Locker, error) {
	if rootPath == "" {
		rootPath = DefaultRootPath
	}

	if err := validateRootPath(rootPath); err != nil {
		return nil, err
	}

	if err := ensurePath(conn, rootPath); err != nil {
		return nil, fmt.Errorf("error creating lock root path %s: %w", rootPath, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("root_path", rootPath).
		Msg("lock root path is ready")

	return &Locker{
		conn:           conn,
		rootPath:       rootPath,
		retryConfig:    retryCfg,
		circuitBreaker: circuitbreaker.New(circuitbreaker.DefaultThreshold, circuitbreaker.DefaultTimeout),
	}, nil
}

// Backend returns the backend name.
func (l *Locker) Backend() string { return lock.BackendZooKeeper }

// TryAcquire implements lock.Locker. The token and ttl are ignored: ownership is
// tied to this Locker's session.
func (l *Locker) TryAcquire(ctx context.Context, key, token string, wait, _ time.Duration) (bool, error) {
	if err := lock.ValidateRequest(key, token, wait); err != nil {
		return false, err
	}

	if strings.Contains(key, "/") {
		return false, ErrInvalidKey
	}

	nodePath := l.nodePath(key)

	acquired, err := lock.Poll(ctx, l.retryConfig, lock.BackendZooKeeper, wait, func(context.Context) (bool, error) {
		return l.createNode(nodePath)
	})
	if err != nil {
		lock.RecordLockAcquisition(ctx, lock.BackendZooKeeper, lock.ResultError)

		zerolog.Ctx(ctx).Error().
			Err(err).
			Str("path", nodePath).
			Msg("error creating lock node")

		return false, fmt.Errorf("error acquiring lock %s: %w", key, err)
	}

	if !acquired {
		lock.RecordLockAcquisition(ctx, lock.BackendZooKeeper, lock.ResultContention)

		zerolog.Ctx(ctx).Debug().
			Str("path", nodePath).
			Dur("wait", wait).
			Msg("distributed lock is held elsewhere")

		return false, nil
	}

	lock.RecordLockAcquisition(ctx, lock.BackendZooKeeper, lock.ResultSuccess)

	zerolog.Ctx(ctx).Debug().
		Str("path", nodePath).
		Msg("acquired distributed lock")

	return true, nil
}

func (l *Locker) createNode(nodePath string) (bool, error) {
	if !l.circuitBreaker.AllowRequest() {
		return false, ErrCircuitBreakerOpen
	}

	_, err := l.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))

	switch {
	case err == nil:
		l.circuitBreaker.RecordSuccess()

		return true, nil
	case errors.Is(err, zk.ErrNodeExists):
		l.circuitBreaker.RecordSuccess()

		return false, nil
	case isConnectionError(err):
		l.circuitBreaker.RecordFailure()
	}

	return false, err
}

// Release implements lock.Locker. Only a node owned by this session is deleted.
func (l *Locker) Release(ctx context.Context, key, _ string) {
	if key == "" || strings.Contains(key, "/") {
		return
	}

	nodePath := l.nodePath(key)
	log := zerolog.Ctx(ctx).With().Str("path", nodePath).Logger()

	exists, stat, err := l.conn.Exists(nodePath)
	if err != nil {
		lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultError)

		log.Warn().Err(err).Msg("failed to release distributed lock (will vanish with the session)")

		return
	}

	if !exists || stat == nil || stat.EphemeralOwner != l.conn.SessionID() {
		lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultNotHeld)

		log.Debug().Msg("distributed lock not held by this session, nothing to release")

		return
	}

	err = l.conn.Delete(nodePath, stat.Version)

	switch {
	case err == nil:
		lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultReleased)

		log.Debug().Msg("released distributed lock")
	case errors.Is(err, zk.ErrNoNode):
		lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultNotHeld)

		log.Debug().Msg("distributed lock already gone")
	case errors.Is(err, zk.ErrNotEmpty):
		lock.RecordLockAnomaly(ctx, lock.BackendZooKeeper, "non_empty_node")

		log.Error().Msg("lock node has children, deleting them recursively")

		if err := deleteRecursive(l.conn, nodePath); err != nil {
			lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultError)

			log.Warn().Err(err).Msg("failed to release distributed lock (will vanish with the session)")

			return
		}

		lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultReleased)
	default:
		lock.RecordLockRelease(ctx, lock.BackendZooKeeper, lock.ReleaseResultError)

		log.Warn().Err(err).Msg("failed to release distributed lock (will vanish with the session)")
	}
}

// Close ends the session, which removes every lock node it still owns.
func (l *Locker) Close() error {
	l.conn.Close()

	return nil
}

func (l *Locker) nodePath(key string) string {
	if l.rootPath == "/" {
		return "/" + key
	}

	return l.rootPath + "/" + key
}

func validateRootPath(p string) error {
	if !strings.HasPrefix(p, "/") || (p != "/" && strings.HasSuffix(p, "/")) || path.Clean(p) != p {
		return fmt.Errorf("%w: %q", ErrInvalidRootPath, p)
	}

	return nil
}

// ensurePath creates every missing component of p as a persistent node.
func ensurePath(conn Conn, p string) error {
	if p == "/" {
		return nil
	}

	current := ""

	for _, part := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		current += "/" + part

		exists, _, err := conn.Exists(current)
		if err != nil {
			return err
		}

		if exists {
			continue
		}

		_, err = conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}

	return nil
}

// deleteRecursive deletes p and everything below it, children first.
func deleteRecursive(conn Conn, p string) error {
	children, _, err := conn.Children(p)
	if err != nil {
		if errors.Is(err, zk.ErrNoNode) {
			return nil
		}

		return err
	}

	for _, child := range children {
		if err := deleteRecursive(conn, p+"/"+child); err != nil {
			return err
		}
	}

	if err := conn.Delete(p, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return err
	}

	return nil
}

func isConnectionError(err error) bool {
	return errors.Is(err, zk.ErrConnectionClosed) ||
		errors.Is(err, zk.ErrNoServer) ||
		errors.Is(err, zk.ErrSessionExpired) ||
		errors.Is(err, zk.ErrClosing)
}
