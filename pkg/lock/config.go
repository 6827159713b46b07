package lock

import "time"

// DefaultJitterFactor is the default proportion of delay to add as random jitter.
const DefaultJitterFactor = 0.5

// RetryConfig controls how TryAcquire retries while its wait budget lasts.
//
// The first SpinAttempts retries only yield the processor. After that each retry
// sleeps BaseDelay + StepDelay*failures, so the interval grows linearly.
type RetryConfig struct {
	// SpinAttempts is the number of failed retries that do not sleep.
	SpinAttempts int

	// BaseDelay is the constant part of the sleep between retries.
	BaseDelay time.Duration

	// StepDelay is added to the sleep once per failed retry.
	StepDelay time.Duration

	// MaxDelay caps the sleep between retries. Zero disables the cap.
	MaxDelay time.Duration

	// Jitter enables random jitter in retry delays to prevent thundering herd.
	Jitter bool

	// JitterFactor is the maximum proportion of delay to add as random jitter.
	// Only used if Jitter is true. Defaults to DefaultJitterFactor if not set.
	JitterFactor float64
}

// GetJitterFactor returns the JitterFactor if it's set and valid (> 0),
// otherwise it returns DefaultJitterFactor.
func (c RetryConfig) GetJitterFactor() float64 {
	if c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}

	return c.JitterFactor
}

// DefaultRetryConfig returns the retry schedule used by every backend unless
// overridden: two spins, then 50ms, 60ms, 70ms and so on, capped at one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		SpinAttempts: 2,
		BaseDelay:    20 * time.Millisecond,
		StepDelay:    10 * time.Millisecond,
		MaxDelay:     time.Second,
		Jitter:       false,
		JitterFactor: DefaultJitterFactor,
	}
}
