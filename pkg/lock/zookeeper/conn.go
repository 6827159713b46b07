package zookeeper

import (
	"context"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/rs/zerolog"
)

// Conn is the subset of *zk.Conn used by the Locker.
type Conn interface {
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	Delete(path string, version int32) error
	Exists(path string) (bool, *zk.Stat, error)
	Children(path string) ([]string, *zk.Stat, error)
	SessionID() int64
	Close()
}

// zkLogger routes the client's internal logging through zerolog.
type zkLogger struct {
	logger zerolog.Logger
}

func (l zkLogger) Printf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

// waitForSession blocks until the connection reports a session, the timeout
// elapses or ctx is done.
func waitForSession(ctx context.Context, events <-chan zk.Event, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrSessionTimeout
		case ev, ok := <-events:
			if !ok {
				return ErrConnClosed
			}

			switch ev.State {
			case zk.StateHasSession:
				return nil
			case zk.StateAuthFailed:
				return ErrAuthFailed
			}
		}
	}
}

// watchSession logs session transitions until the connection is closed.
// Ephemeral lock nodes vanish with an expired session, so expiry is a warning.
func watchSession(logger zerolog.Logger, events <-chan zk.Event) {
	for ev := range events {
		if ev.Type != zk.EventSession {
			continue
		}

		switch ev.State {
		case zk.StateExpired:
			logger.Warn().
				Str("state", ev.State.String()).
				Msg("ZooKeeper session expired, locks held by this session are lost")
		case zk.StateDisconnected:
			logger.Warn().
				Str("state", ev.State.String()).
				Msg("disconnected from ZooKeeper")
		case zk.StateHasSession:
			logger.Info().
				Str("server", ev.Server).
				Msg("ZooKeeper session established")
		default:
			logger.Debug().
				Str("state", ev.State.String()).
				Msg("ZooKeeper session state changed")
		}
	}
}
