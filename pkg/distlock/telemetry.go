package distlock

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/kalbasit/distlock/pkg/otel"
	"github.com/kalbasit/distlock/pkg/prometheus"
)

// setupTelemetry installs the OpenTelemetry providers and, with
// withPrometheus, a Prometheus registry whose gatherer is returned.
func setupTelemetry(
	ctx context.Context,
	cmd *cli.Command,
	registerShutdown registerShutdownFn,
	withPrometheus bool,
) (promclient.Gatherer, error) {
	res, err := otel.NewResource(
		ctx,
		cmd.Root().Name,
		Version,
		attribute.String("distlock.command", cmd.Name),
		attribute.String("distlock.lock.backend", cmd.String("lock-backend")),
	)
	if err != nil {
		zerolog.Ctx(ctx).
			Error().
			Err(err).
			Msg("error creating a new otel resource")

		return nil, err
	}

	var gatherer promclient.Gatherer

	// Instruments created before the first meter provider is installed stay
	// bound to it, so Prometheus has to come first.
	if withPrometheus {
		var shutdown shutdownFn

		gatherer, shutdown, err = prometheus.SetupPrometheusMetrics(res)
		if err != nil {
			return nil, fmt.Errorf("error setting up Prometheus metrics: %w", err)
		}

		registerShutdown("prometheus", shutdown)
	}

	otelShutdown, err := otel.SetupOTelSDK(
		ctx,
		cmd.Root().Bool("otel-enabled"),
		cmd.Root().String("otel-grpc-url"),
		res,
	)
	if err != nil {
		return nil, err
	}

	registerShutdown("open telemetry", otelShutdown)

	return gatherer, nil
}
