package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"

	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// NewResource describes this process to OpenTelemetry. It is shared by the
// OTLP and Prometheus pipelines.
func NewResource(
	ctx context.Context,
	serviceName,
	serviceVersion string,
	extraAttrs ...attribute.KeyValue,
) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersionKey.String(serviceVersion),
	}
	attrs = append(attrs, extraAttrs...)

	return resource.New(
		ctx,
		resource.WithAttributes(attrs...),

		// OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),

		// Not resource.WithProcess(): it records the command line, and the
		// wrapped command's arguments may carry credentials.
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithProcessOwner(),
		resource.WithProcessRuntimeName(),
		resource.WithProcessRuntimeVersion(),

		resource.WithOS(),
		resource.WithContainer(),
		resource.WithHost(),
	)
}
