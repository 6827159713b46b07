package factory_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalbasit/distlock/pkg/lock"
	"github.com/kalbasit/distlock/pkg/lock/factory"
	"github.com/kalbasit/distlock/pkg/lock/redis"
	"github.com/kalbasit/distlock/pkg/lock/redlock"
	"github.com/kalbasit/distlock/pkg/lock/zookeeper"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want factory.Kind
	}{
		{"local", factory.KindLocal},
		{"redis", factory.KindRedis},
		{"Redis", factory.KindRedis},
		{" redlock ", factory.KindRedlock},
		{"zookeeper", factory.KindZooKeeper},
		{"ZooKeeper", factory.KindZooKeeper},
	}

	for _, tt := range tests {
		got, err := factory.ParseKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, in := range []string{"", "etcd", "postgres"} {
		_, err := factory.ParseKind(in)
		require.ErrorIs(t, err, factory.ErrUnknownKind, in)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		t.Parallel()

		svc, err := factory.New(ctx, factory.Config{Kind: factory.KindLocal, Retry: lock.DefaultRetryConfig()})
		require.NoError(t, err)
		assert.Equal(t, lock.BackendLocal, svc.Backend())
		require.NoError(t, svc.Close())
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)

		svc, err := factory.New(ctx, factory.Config{
			Kind:  factory.KindRedis,
			Retry: lock.DefaultRetryConfig(),
			Redis: redis.Config{Addr: mr.Addr()},
		})
		require.NoError(t, err)
		assert.Equal(t, lock.BackendRedis, svc.Backend())
		require.NoError(t, svc.Close())
	})

	t.Run("redlock", func(t *testing.T) {
		t.Parallel()

		mr := miniredis.RunT(t)

		svc, err := factory.New(ctx, factory.Config{
			Kind:    factory.KindRedlock,
			Retry:   lock.DefaultRetryConfig(),
			Redlock: redlock.Config{Addrs: []string{mr.Addr()}},
		})
		require.NoError(t, err)
		assert.Equal(t, lock.BackendRedlock, svc.Backend())
		require.NoError(t, svc.Close())
	})

	t.Run("construction errors are returned", func(t *testing.T) {
		t.Parallel()

		_, err := factory.New(ctx, factory.Config{Kind: factory.KindRedis})
		require.ErrorIs(t, err, redis.ErrNoRedisAddr)

		_, err = factory.New(ctx, factory.Config{Kind: factory.KindZooKeeper})
		require.ErrorIs(t, err, zookeeper.ErrNoServers)
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()

		_, err := factory.New(ctx, factory.Config{Kind: "etcd"})
		require.ErrorIs(t, err, factory.ErrUnknownKind)
	})
}
