package lock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	otelPackageName = "github.com/kalbasit/distlock/pkg/lock"
)

// Backend names used as the "backend" metric attribute.
const (
	BackendLocal     = "local"
	BackendRedis     = "redis"
	BackendRedlock   = "redlock"
	BackendZooKeeper = "zookeeper"
)

// Acquisition results.
const (
	ResultSuccess    = "success"
	ResultContention = "contention"
	ResultError      = "error"
)

// Release results.
const (
	ReleaseResultReleased = "released"
	ReleaseResultNotHeld  = "not_held"
	ReleaseResultError    = "error"
)

var (
	//nolint:gochecknoglobals
	meter metric.Meter

	// lockAcquisitionsTotal tracks completed TryAcquire calls.
	//nolint:gochecknoglobals
	lockAcquisitionsTotal metric.Int64Counter

	// lockHoldDuration tracks how long locks are held by Execute.
	//nolint:gochecknoglobals
	lockHoldDuration metric.Float64Histogram

	// lockReleasesTotal tracks release outcomes.
	//nolint:gochecknoglobals
	lockReleasesTotal metric.Int64Counter

	// lockRetryAttemptsTotal tracks retries made while waiting for a lock.
	//nolint:gochecknoglobals
	lockRetryAttemptsTotal metric.Int64Counter

	// lockAnomaliesTotal tracks states the protocol should never produce.
	//nolint:gochecknoglobals
	lockAnomaliesTotal metric.Int64Counter
)

//nolint:gochecknoinits
func init() {
	meter = otel.Meter(otelPackageName)

	var err error

	lockAcquisitionsTotal, err = meter.Int64Counter(
		"distlock_lock_acquisitions_total",
		metric.WithDescription("Total number of lock acquisition calls"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(err)
	}

	lockHoldDuration, err = meter.Float64Histogram(
		"distlock_lock_hold_duration_seconds",
		metric.WithDescription("Duration that locks are held"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}

	lockReleasesTotal, err = meter.Int64Counter(
		"distlock_lock_releases_total",
		metric.WithDescription("Total number of lock releases"),
		metric.WithUnit("{release}"),
	)
	if err != nil {
		panic(err)
	}

	lockRetryAttemptsTotal, err = meter.Int64Counter(
		"distlock_lock_retry_attempts_total",
		metric.WithDescription("Total number of lock retry attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		panic(err)
	}

	lockAnomaliesTotal, err = meter.Int64Counter(
		"distlock_lock_anomalies_total",
		metric.WithDescription("Total number of unexpected lock states observed"),
		metric.WithUnit("{anomaly}"),
	)
	if err != nil {
		panic(err)
	}
}

// RecordLockAcquisition records the outcome of a TryAcquire call.
// result should be "success", "contention", or "error".
func RecordLockAcquisition(ctx context.Context, backend, result string) {
	if lockAcquisitionsTotal == nil {
		return
	}

	lockAcquisitionsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("result", result),
		),
	)
}

// RecordLockDuration records how long a lock was held, in seconds.
func RecordLockDuration(ctx context.Context, backend string, duration float64) {
	if lockHoldDuration == nil {
		return
	}

	lockHoldDuration.Record(ctx, duration,
		metric.WithAttributes(
			attribute.String("backend", backend),
		),
	)
}

// RecordLockRelease records the outcome of a Release call.
// result should be "released", "not_held", or "error".
func RecordLockRelease(ctx context.Context, backend, result string) {
	if lockReleasesTotal == nil {
		return
	}

	lockReleasesTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("result", result),
		),
	)
}

// RecordLockRetryAttempt records a lock retry attempt.
func RecordLockRetryAttempt(ctx context.Context, backend string) {
	if lockRetryAttemptsTotal == nil {
		return
	}

	lockRetryAttemptsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
		),
	)
}

// RecordLockAnomaly records an unexpected lock state, e.g. "non_empty_node".
func RecordLockAnomaly(ctx context.Context, backend, kind string) {
	if lockAnomaliesTotal == nil {
		return
	}

	lockAnomaliesTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
		),
	)
}
