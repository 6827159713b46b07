// Package prometheus exposes OpenTelemetry metrics in the Prometheus format.
package prometheus

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	prometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// SetupPrometheusMetrics installs a global meter provider backed by a
// dedicated Prometheus registry and returns that registry with the provider's
// shutdown function.
func SetupPrometheusMetrics(res *resource.Resource) (promclient.Gatherer, func(context.Context) error, error) {
	registry := promclient.NewRegistry()

	prometheusExporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(prometheusExporter),
	)

	otel.SetMeterProvider(meterProvider)

	return registry, meterProvider.Shutdown, nil
}

// Handler serves the metrics of gatherer.
func Handler(gatherer promclient.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
