package distlock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kalbasit/distlock/pkg/lock"
	"github.com/kalbasit/distlock/pkg/maxprocs"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverShutdownTimeout   = 10 * time.Second
)

func cronCommand(flagSources flagSourcesFn, registerShutdown registerShutdownFn) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name: "schedule",
			//nolint:lll
			Usage:    "The cron spec of the command. Refer to https://pkg.go.dev/github.com/robfig/cron/v3#hdr-Usage for documentation",
			Sources:  flagSources("cron.schedule", "CRON_SCHEDULE"),
			Required: true,
			Validator: func(s string) error {
				_, err := cron.ParseStandard(s)

				return err
			},
		},
		&cli.StringFlag{
			Name:    "schedule-timezone",
			Usage:   "The name of the timezone to use for the cron",
			Sources: flagSources("cron.timezone", "CRON_SCHEDULE_TZ"),
		},
		&cli.StringFlag{
			Name:    "prometheus-listen-addr",
			Usage:   "Serve Prometheus metrics at /metrics on this address (e.g., :9090). Disabled if empty.",
			Sources: flagSources("prometheus.listen-addr", "PROMETHEUS_LISTEN_ADDR"),
		},
	}

	flags = append(flags, jobFlags(flagSources)...)
	flags = append(flags, lockFlags(flagSources)...)

	return &cli.Command{
		Name:      "cron",
		Usage:     "Run a command on a schedule, at most once per tick across every instance",
		ArgsUsage: "-- command [args...]",
		Action:    cronAction(registerShutdown),
		Flags:     flags,
	}
}

func cronAction(registerShutdown registerShutdownFn) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		logger := zerolog.Ctx(ctx).With().Str("cmd", "cron").Logger()

		ctx = logger.WithContext(ctx)

		j, err := newJob(cmd)
		if err != nil {
			return err
		}

		// A scheduled command must not compete for the terminal.
		j.stdin = nil

		schedule, err := cron.ParseStandard(cmd.String("schedule"))
		if err != nil {
			return fmt.Errorf("error parsing the cron spec %q: %w", cmd.String("schedule"), err)
		}

		loc := time.Local

		if cronTimezone := cmd.String("schedule-timezone"); cronTimezone != "" {
			loc, err = time.LoadLocation(cronTimezone)
			if err != nil {
				return fmt.Errorf("error parsing the timezone %q: %w", cronTimezone, err)
			}
		}

		listenAddr := cmd.String("prometheus-listen-addr")

		gatherer, err := setupTelemetry(ctx, cmd, registerShutdown, listenAddr != "")
		if err != nil {
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

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			if err := maxprocs.AutoMaxProcs(ctx, 30*time.Second); ctx.Err() == nil {
				return err
			}

			return nil
		})

		if listenAddr != "" {
			baseCtx := context.WithoutCancel(ctx)

			startServer(ctx, g, &http.Server{
				Addr:              listenAddr,
				Handler:           newMetricsRouter(gatherer),
				ReadHeaderTimeout: serverReadHeaderTimeout,
				BaseContext:       func(net.Listener) context.Context { return baseCtx },
			})
		}

		c := newCron(ctx, loc)
		c.Schedule(schedule, cron.FuncJob(func() { runTick(ctx, j, svc) }))

		logger.
			Info().
			Str("key", j.key).
			Str("time_zone", loc.String()).
			Time("next_run", schedule.Next(time.Now().In(loc))).
			Msg("starting the scheduler")

		c.Start()

		g.Go(func() error {
			<-ctx.Done()

			// Stop waits for a running command, which was signaled through ctx.
			<-c.Stop().Done()

			logger.Info().Msg("scheduler stopped")

			return nil
		})

		return g.Wait()
	}
}

func newCron(ctx context.Context, loc *time.Location) *cron.Cron {
	cl := cronLogger{logger: zerolog.Ctx(ctx).With().Str("component", "cron").Logger()}

	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// runTick runs one scheduled execution. Losing the race to another instance is
// the expected outcome on all but one of them.
func runTick(ctx context.Context, j *job, l lock.Locker) {
	if ctx.Err() != nil {
		return
	}

	code, err := j.execute(ctx, l)

	switch {
	case errors.Is(err, ErrLockHeld):
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Str("key", j.key).Msg("error running the scheduled command")
	case code != 0:
		zerolog.Ctx(ctx).Warn().Int("exit_code", code).Str("key", j.key).Msg("scheduled command failed")
	}
}

func startServer(ctx context.Context, g *errgroup.Group, srv *http.Server) {
	g.Go(func() error {
		zerolog.Ctx(ctx).
			Info().
			Str("listen_addr", srv.Addr).
			Msg("Prometheus metrics enabled at /metrics")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting the metrics server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
