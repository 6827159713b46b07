package lock

import (
	"context"
	"runtime"
	"time"

	mathrand "math/rand"
)

// CalculateBackoff returns how long to sleep after the given number of failed
// retries. It is zero while failures is within cfg.SpinAttempts.
func CalculateBackoff(cfg RetryConfig, failures int) time.Duration {
	if failures <= 0 || failures <= cfg.SpinAttempts {
		return 0
	}

	delay := cfg.BaseDelay + cfg.StepDelay*time.Duration(failures)

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	if cfg.Jitter {
		factor := cfg.GetJitterFactor()

		//nolint:gosec // G404: math/rand is acceptable for jitter, doesn't need crypto-grade randomness
		jitter := mathrand.Float64() * float64(delay) * factor
		delay += time.Duration(jitter)
	}

	return delay
}

// AttemptFunc makes a single acquisition attempt.
type AttemptFunc func(ctx context.Context) (bool, error)

// Poll runs attempt until it succeeds, fails with an error, ctx is done or wait
// elapses.
//
// The first attempt is made immediately. With a zero wait there are no retries.
// Each retry yields the processor first and, once the spin phase is over, sleeps
// according to CalculateBackoff, never past the end of the wait budget.
func Poll(ctx context.Context, cfg RetryConfig, backend string, wait time.Duration, attempt AttemptFunc) (bool, error) {
	ok, err := attempt(ctx)
	if err != nil || ok || wait <= 0 {
		return ok, err
	}

	deadline := time.Now().Add(wait)

	for failures := 0; ; {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		runtime.Gosched()

		RecordLockRetryAttempt(ctx, backend)

		ok, err = attempt(ctx)
		if err != nil || ok {
			return ok, err
		}

		failures++

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		if delay := CalculateBackoff(cfg, failures); delay > 0 {
			if delay > remaining {
				delay = remaining
			}

			timer := time.NewTimer(delay)

			select {
			case <-ctx.Done():
				timer.Stop()

				return false, ctx.Err()
			case <-timer.C:
			}
		}

		if !time.Now().Before(deadline) {
			return false, nil
		}
	}
}
