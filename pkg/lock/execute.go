package lock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Callback is a unit of work run by Execute.
type Callback[R any] func(ctx context.Context) (R, error)

// Fail returns a failure callback that always returns err.
func Fail[R any](err error) Callback[R] {
	return func(context.Context) (R, error) {
		var zero R

		return zero, err
	}
}

// Execute acquires the lock for key, runs onSuccess while holding it and releases
// it afterwards.
//
// A fresh ownership token is generated for the call. When the lock is obtained
// within wait, onSuccess runs and the lock is released on every exit path,
// including a panic. When it is not obtained, onFailure runs and no release is
// issued. Exactly one of the callbacks runs unless TryAcquire itself fails, in
// which case its error is returned and neither runs.
//
// Errors returned by the callbacks are returned unchanged. A nil onFailure makes
// Execute return ErrNotAcquired on contention.
func Execute[R any](
	ctx context.Context,
	l Locker,
	key string,
	wait, ttl time.Duration,
	onSuccess, onFailure Callback[R],
) (R, error) {
	var zero R

	if onSuccess == nil {
		return zero, ErrNilCallback
	}

	log := zerolog.Ctx(ctx).With().Str("key", key).Logger()

	token := NewToken()

	acquired, err := l.TryAcquire(ctx, key, token, wait, ttl)
	if err != nil {
		return zero, err
	}

	if !acquired {
		log.Debug().Dur("wait", wait).Msg("lock not acquired, running failure callback")

		if onFailure == nil {
			return zero, ErrNotAcquired
		}

		return onFailure(ctx)
	}

	start := time.Now()

	defer func() {
		// The caller's context may already be canceled; the release must still go out.
		l.Release(context.WithoutCancel(ctx), key, token)

		RecordLockDuration(ctx, backendName(l), time.Since(start).Seconds())
	}()

	log.Debug().Msg("lock acquired, running success callback")

	return onSuccess(ctx)
}

func backendName(l Locker) string {
	if s, ok := l.(interface{ Backend() string }); ok {
		return s.Backend()
	}

	return "unknown"
}
