package distlock

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	otelPackageNameMetrics = "github.com/kalbasit/distlock/pkg/distlock"

	// Job result constants for metrics.
	JobResultSuccess = "success"
	JobResultFailure = "failure"
	JobResultSkipped = "skipped"
	JobResultError   = "error"
)

var (
	//nolint:gochecknoglobals
	meterJob metric.Meter

	// jobRunsTotal counts locked command runs by outcome.
	//nolint:gochecknoglobals
	jobRunsTotal metric.Int64Counter

	// jobDuration tracks how long a locked command took, lock round-trips included.
	//nolint:gochecknoglobals
	jobDuration metric.Float64Histogram
)

//nolint:gochecknoinits
func init() {
	meterJob = otel.Meter(otelPackageNameMetrics)

	var err error

	jobRunsTotal, err = meterJob.Int64Counter(
		"distlock_job_runs_total",
		metric.WithDescription("Total number of commands run under a lock, by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		panic(err)
	}

	jobDuration, err = meterJob.Float64Histogram(
		"distlock_job_duration_seconds",
		metric.WithDescription("Duration of commands run under a lock"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(err)
	}
}

// RecordJobRun records a command run.
// command is the CLI command (run or cron).
// result should be one of JobResult* constants.
func RecordJobRun(ctx context.Context, command, result string) {
	if jobRunsTotal == nil {
		return
	}

	jobRunsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("result", result),
		),
	)
}

// RecordJobDuration records how long a command ran.
func RecordJobDuration(ctx context.Context, command string, seconds float64) {
	if jobDuration == nil {
		return
	}

	jobDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("command", command),
		),
	)
}
