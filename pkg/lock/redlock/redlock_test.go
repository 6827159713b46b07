package redlock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalbasit/distlock/pkg/lock"
	"github.com/kalbasit/distlock/pkg/lock/redlock"
	"github.com/kalbasit/distlock/testhelper"
)

func startNodes(t *testing.T, n int) ([]*miniredis.Miniredis, []string) {
	t.Helper()

	nodes := make([]*miniredis.Miniredis, 0, n)
	addrs := make([]string, 0, n)

	for range n {
		mr := miniredis.RunT(t)
		nodes = append(nodes, mr)
		addrs = append(addrs, mr.Addr())
	}

	return nodes, addrs
}

func newTestLocker(t *testing.T, addrs []string) *redlock.Locker {
	t.Helper()

	l, err := redlock.NewLocker(context.Background(), redlock.Config{Addrs: addrs}, lock.DefaultRetryConfig())
	require.NoError(t, err)

	t.Cleanup(func() { _ = l.Close() })

	return l
}

func TestNewLocker(t *testing.T) {
	t.Parallel()

	t.Run("addresses are required", func(t *testing.T) {
		t.Parallel()

		_, err := redlock.NewLocker(context.Background(), redlock.Config{}, lock.DefaultRetryConfig())
		require.ErrorIs(t, err, redlock.ErrNoRedisAddrs)
	})

	t.Run("quorum of reachable nodes is required", func(t *testing.T) {
		t.Parallel()

		_, addrs := startNodes(t, 1)

		down := make([]string, 0, 2)

		for range 2 {
			mr, err := miniredis.Run()
			require.NoError(t, err)

			down = append(down, mr.Addr())
			mr.Close()
		}

		_, err := redlock.NewLocker(context.Background(),
			redlock.Config{Addrs: append(addrs, down...)}, lock.DefaultRetryConfig())
		require.ErrorIs(t, err, redlock.ErrInsufficientNodesQuorum)
	})

	t.Run("a minority of unreachable nodes is tolerated", func(t *testing.T) {
		t.Parallel()

		_, addrs := startNodes(t, 2)

		mr, err := miniredis.Run()
		require.NoError(t, err)

		down := mr.Addr()
		mr.Close()

		l := newTestLocker(t, append(addrs, down))
		assert.Equal(t, lock.BackendRedlock, l.Backend())
	})
}

func TestLocker(t *testing.T) {
	t.Parallel()

	t.Run("token is written to a majority of nodes", func(t *testing.T) {
		t.Parallel()

		nodes, addrs := startNodes(t, 3)
		l := newTestLocker(t, addrs)
		ctx := context.Background()
		key := testhelper.UniqueKey(t, "majority")

		ok, err := l.TryAcquire(ctx, key, "token-a", 0, 5*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		holders := 0

		for _, mr := range nodes {
			if val, err := mr.Get(redlock.DefaultKeyPrefix + key); err == nil && val == "token-a" {
				holders++
			}
		}

		assert.GreaterOrEqual(t, holders, 2)
	})

	t.Run("second owner is refused while the lock is held", func(t *testing.T) {
		t.Parallel()

		_, addrs := startNodes(t, 3)
		l := newTestLocker(t, addrs)
		ctx := context.Background()
		key := testhelper.UniqueKey(t, "exclusive")

		ok, err := l.TryAcquire(ctx, key, "token-a", 0, 5*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = l.TryAcquire(ctx, key, "token-b", 200*time.Millisecond, 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("release is bound to the token", func(t *testing.T) {
		t.Parallel()

		nodes, addrs := startNodes(t, 3)
		l := newTestLocker(t, addrs)
		ctx := context.Background()
		key := testhelper.UniqueKey(t, "token")

		ok, err := l.TryAcquire(ctx, key, "token-a", 0, 5*time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		l.Release(ctx, key, "token-b")

		ok, err = l.TryAcquire(ctx, key, "token-c", 0, 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok, "foreign release must not free the lock")

		l.Release(ctx, key, "token-a")
		l.Release(ctx, key, "token-a")

		for _, mr := range nodes {
			assert.False(t, mr.Exists(redlock.DefaultKeyPrefix+key))
		}

		ok, err = l.TryAcquire(ctx, key, "token-c", 0, 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("waiter gets the lock once the TTL expires", func(t *testing.T) {
		t.Parallel()

		nodes, addrs := startNodes(t, 3)
		l := newTestLocker(t, addrs)
		ctx := context.Background()
		key := testhelper.UniqueKey(t, "ttl")

		ok, err := l.TryAcquire(ctx, key, "token-a", 0, 500*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		go func() {
			time.Sleep(100 * time.Millisecond)

			for _, mr := range nodes {
				mr.FastForward(time.Second)
			}
		}()

		ok, err = l.TryAcquire(ctx, key, "token-b", 2*time.Second, 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
