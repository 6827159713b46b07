package otel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/kalbasit/distlock/pkg/otel"
)

//nolint:paralleltest // installs global providers
func TestSetupOTelSDK(t *testing.T) {
	ctx := context.Background()

	res, err := otel.NewResource(ctx, "distlock-test", "v0.0.0")
	require.NoError(t, err)

	t.Run("disabled discards every signal", func(t *testing.T) {
		shutdown, err := otel.SetupOTelSDK(ctx, false, "", res)
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(ctx))
	})

	t.Run("enabled without a collector prints to stdout", func(t *testing.T) {
		shutdown, err := otel.SetupOTelSDK(ctx, true, "", res)
		require.NoError(t, err)
		require.NotNil(t, shutdown)
		assert.NoError(t, shutdown(ctx))
	})
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	res, err := otel.NewResource(context.Background(), "distlock", "v1.2.3",
		attribute.String("deployment.environment", "test"))
	require.NoError(t, err)

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value
	}

	assert.Equal(t, "distlock", attrs[semconv.ServiceNameKey].AsString())
	assert.Equal(t, "v1.2.3", attrs[semconv.ServiceVersionKey].AsString())
	assert.Equal(t, "test", attrs["deployment.environment"].AsString())
	assert.NotContains(t, attrs, semconv.ProcessCommandArgsKey)
}
