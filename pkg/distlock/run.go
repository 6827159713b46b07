package distlock

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func runCommand(flagSources flagSourcesFn, registerShutdown registerShutdownFn) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a command once while holding a distributed lock",
		ArgsUsage: "-- command [args...]",
		Action:    runAction(registerShutdown),
		Flags:     append(jobFlags(flagSources), lockFlags(flagSources)...),
	}
}

func runAction(registerShutdown registerShutdownFn) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		logger := zerolog.Ctx(ctx).With().Str("cmd", "run").Logger()

		ctx = logger.WithContext(ctx)

		j, err := newJob(cmd)
		if err != nil {
			return err
		}

		if _, err := setupTelemetry(ctx, cmd, registerShutdown, false); err != nil {
			return err
		}

		svc, err := newLockService(ctx, cmd)
		if err != nil {
			return err
		}

		defer func() {
			if err := svc.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing the lock backend")
			}
		}()

		code, err := j.execute(ctx, svc)

		switch {
		case errors.Is(err, ErrLockHeld):
			return &ExitError{Code: code, Err: err}
		case err != nil:
			return err
		case code != 0:
			return &ExitError{Code: code}
		}

		return nil
	}
}
