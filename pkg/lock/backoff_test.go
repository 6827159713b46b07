package lock_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalbasit/distlock/pkg/lock"
)

var errBackendDown = errors.New("backend down")

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	cfg := lock.DefaultRetryConfig()

	// Spin phase: no sleep
	assert.Equal(t, time.Duration(0), lock.CalculateBackoff(cfg, 0))
	assert.Equal(t, time.Duration(0), lock.CalculateBackoff(cfg, 1))
	assert.Equal(t, time.Duration(0), lock.CalculateBackoff(cfg, 2))

	// 20ms + 10ms*failures
	assert.Equal(t, 50*time.Millisecond, lock.CalculateBackoff(cfg, 3))
	assert.Equal(t, 60*time.Millisecond, lock.CalculateBackoff(cfg, 4))
	assert.Equal(t, 120*time.Millisecond, lock.CalculateBackoff(cfg, 10))

	// Cap at MaxDelay
	assert.Equal(t, time.Second, lock.CalculateBackoff(cfg, 1000))
}

func TestCalculateBackoff_NoCap(t *testing.T) {
	t.Parallel()

	cfg := lock.DefaultRetryConfig()
	cfg.MaxDelay = 0

	assert.Equal(t, 20*time.Millisecond+10*time.Second, lock.CalculateBackoff(cfg, 1000))
}

func TestCalculateBackoff_Jitter(t *testing.T) {
	t.Parallel()

	cfg := lock.DefaultRetryConfig()
	cfg.Jitter = true
	cfg.JitterFactor = 0.5

	// failures=3 gives 50ms, so with jitter it lies in [50ms, 75ms].
	for range 100 {
		delay := lock.CalculateBackoff(cfg, 3)
		assert.GreaterOrEqual(t, delay, 50*time.Millisecond)
		assert.LessOrEqual(t, delay, 75*time.Millisecond)
	}
}

func TestRetryConfig_GetJitterFactor(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, lock.DefaultJitterFactor, lock.RetryConfig{}.GetJitterFactor(), 0)
	assert.InDelta(t, 0.2, lock.RetryConfig{JitterFactor: 0.2}.GetJitterFactor(), 0)
}

func TestPoll(t *testing.T) {
	t.Parallel()

	t.Run("zero wait makes exactly one attempt", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		ok, err := lock.Poll(context.Background(), lock.DefaultRetryConfig(), "test", 0,
			func(context.Context) (bool, error) {
				calls.Add(1)

				return false, nil
			})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("first attempt success returns immediately", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		ok, err := lock.Poll(context.Background(), lock.DefaultRetryConfig(), "test", time.Second,
			func(context.Context) (bool, error) {
				calls.Add(1)

				return true, nil
			})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("succeeds on a later attempt", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		ok, err := lock.Poll(context.Background(), lock.DefaultRetryConfig(), "test", 2*time.Second,
			func(context.Context) (bool, error) {
				return calls.Add(1) == 5, nil
			})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(5), calls.Load())
	})

	t.Run("errors stop the loop", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32

		ok, err := lock.Poll(context.Background(), lock.DefaultRetryConfig(), "test", time.Second,
			func(context.Context) (bool, error) {
				if calls.Add(1) == 2 {
					return false, errBackendDown
				}

				return false, nil
			})
		require.ErrorIs(t, err, errBackendDown)
		assert.False(t, ok)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("gives up once the wait budget is spent", func(t *testing.T) {
		t.Parallel()

		const wait = 300 * time.Millisecond

		start := time.Now()

		ok, err := lock.Poll(context.Background(), lock.DefaultRetryConfig(), "test", wait,
			func(context.Context) (bool, error) { return false, nil })
		elapsed := time.Since(start)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.GreaterOrEqual(t, elapsed, wait)
		assert.Less(t, elapsed, wait+200*time.Millisecond)
	})

	t.Run("context cancellation aborts the wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()

		ok, err := lock.Poll(ctx, lock.DefaultRetryConfig(), "test", 10*time.Second,
			func(context.Context) (bool, error) { return false, nil })

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}
