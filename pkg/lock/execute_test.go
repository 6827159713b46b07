package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalbasit/distlock/pkg/lock"
)

var errCallback = errors.New("callback failed")

// recordingLocker is a scripted Locker that records the calls it receives.
type recordingLocker struct {
	mu sync.Mutex

	acquire    bool
	acquireErr error

	acquireCalls []string
	releaseCalls []string
	releaseCtxOK bool
}

func (r *recordingLocker) TryAcquire(_ context.Context, key, token string, _, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.acquireCalls = append(r.acquireCalls, key+"/"+token)

	return r.acquire, r.acquireErr
}

func (r *recordingLocker) Release(ctx context.Context, key, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseCalls = append(r.releaseCalls, key+"/"+token)
	r.releaseCtxOK = ctx.Err() == nil
}

func (r *recordingLocker) Backend() string { return "recording" }

func TestExecute(t *testing.T) {
	t.Parallel()

	t.Run("acquired runs success and releases with the same token", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: true}

		res, err := lock.Execute(context.Background(), l, "k", 0, time.Second,
			func(context.Context) (string, error) { return "ok", nil },
			func(context.Context) (string, error) {
				t.Error("failure callback must not run")

				return "", nil
			},
		)
		require.NoError(t, err)
		assert.Equal(t, "ok", res)

		require.Len(t, l.acquireCalls, 1)
		require.Len(t, l.releaseCalls, 1)
		assert.Equal(t, l.acquireCalls[0], l.releaseCalls[0])
	})

	t.Run("not acquired runs failure and never releases", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: false}

		res, err := lock.Execute(context.Background(), l, "k", 0, time.Second,
			func(context.Context) (int, error) {
				t.Error("success callback must not run")

				return 0, nil
			},
			func(context.Context) (int, error) { return 42, nil },
		)
		require.NoError(t, err)
		assert.Equal(t, 42, res)
		assert.Empty(t, l.releaseCalls)
	})

	t.Run("nil failure callback returns ErrNotAcquired", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: false}

		_, err := lock.Execute(context.Background(), l, "k", 0, time.Second,
			func(context.Context) (int, error) { return 0, nil }, nil)
		require.ErrorIs(t, err, lock.ErrNotAcquired)
	})

	t.Run("Fail builds a failure callback", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: false}

		_, err := lock.Execute(context.Background(), l, "k", 0, time.Second,
			func(context.Context) (int, error) { return 0, nil }, lock.Fail[int](errCallback))
		require.ErrorIs(t, err, errCallback)
	})

	t.Run("acquisition errors are propagated and no callback runs", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquireErr: errBackendDown}

		_, err := lock.Execute(context.Background(), l, "k", 0, time.Second,
			func(context.Context) (int, error) {
				t.Error("success callback must not run")

				return 0, nil
			},
			func(context.Context) (int, error) {
				t.Error("failure callback must not run")

				return 0, nil
			},
		)
		require.ErrorIs(t, err, errBackendDown)
		assert.Empty(t, l.releaseCalls)
	})

	t.Run("callback errors are returned unchanged after release", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: true}

		_, err := lock.Execute(context.Background(), l, "k", 0, time.Second,
			func(context.Context) (int, error) { return 0, errCallback }, nil)
		require.Equal(t, errCallback, err)
		assert.Len(t, l.releaseCalls, 1)
	})

	t.Run("release happens when the callback panics", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: true}

		assert.Panics(t, func() {
			_, _ = lock.Execute(context.Background(), l, "k", 0, time.Second,
				func(context.Context) (int, error) { panic("boom") }, nil)
		})
		assert.Len(t, l.releaseCalls, 1)
	})

	t.Run("release ignores cancellation of the caller context", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: true}

		ctx, cancel := context.WithCancel(context.Background())

		_, err := lock.Execute(ctx, l, "k", 0, time.Second,
			func(context.Context) (int, error) {
				cancel()

				return 0, nil
			}, nil)
		require.NoError(t, err)
		require.Len(t, l.releaseCalls, 1)
		assert.True(t, l.releaseCtxOK)
	})

	t.Run("nil success callback is rejected before acquiring", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: true}

		_, err := lock.Execute[int](context.Background(), l, "k", 0, time.Second, nil, nil)
		require.ErrorIs(t, err, lock.ErrNilCallback)
		assert.Empty(t, l.acquireCalls)
	})

	t.Run("each call uses a fresh token", func(t *testing.T) {
		t.Parallel()

		l := &recordingLocker{acquire: true}
		run := func(context.Context) (int, error) { return 0, nil }

		_, err := lock.Execute(context.Background(), l, "k", 0, time.Second, run, nil)
		require.NoError(t, err)
		_, err = lock.Execute(context.Background(), l, "k", 0, time.Second, run, nil)
		require.NoError(t, err)

		require.Len(t, l.acquireCalls, 2)
		assert.NotEqual(t, l.acquireCalls[0], l.acquireCalls[1])
	})
}
