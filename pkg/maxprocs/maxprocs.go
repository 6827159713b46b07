// Package maxprocs keeps GOMAXPROCS in line with the container CPU quota.
package maxprocs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"
)

// AutoMaxProcs sets GOMAXPROCS from the CPU quota now and then every d until
// ctx is done. The quota of a long-running process may change under it.
func AutoMaxProcs(ctx context.Context, d time.Duration) error {
	logger := zerolog.Ctx(ctx).With().Str("operation", "auto-max-procs").Logger()

	infof := diffInfof(logger)
	setMaxProcs := func() {
		if _, err := maxprocs.Set(maxprocs.Logger(infof)); err != nil {
			logger.Error().Err(err).Msg("failed to set GOMAXPROCS")
		}
	}

	setMaxProcs()

	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			setMaxProcs()
		}
	}
}

// diffInfof logs a message only when it differs from the previous one.
func diffInfof(logger zerolog.Logger) func(string, ...any) {
	var last string

	return func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if msg != last {
			logger.Info().Msg(msg)
			last = msg
		}
	}
}
