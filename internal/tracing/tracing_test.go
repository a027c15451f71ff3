package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dilawari2008/dental-appointment-scheduling/internal/config"
)

func keepGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestSetupDisabledLeavesProvider(t *testing.T) {
	keepGlobalProvider(t)
	prev := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Config{Enabled: false, ServiceName: "api-server"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Equal(t, prev, otel.GetTracerProvider())
	require.NotNil(t, otel.GetTextMapPropagator())
}

func TestSetupInstallsSDKProvider(t *testing.T) {
	keepGlobalProvider(t)

	shutdown, err := Setup(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "scheduler-worker",
		OTLPEndpoint: "127.0.0.1:4317",
		SampleRatio:  1,
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, shutdown(ctx))
}

func TestFromAppConfig(t *testing.T) {
	cfg := FromAppConfig(config.Config{OTelEnabled: true, OTLPEndpoint: "jaeger:4317", OTelSampleRatio: 0.5}, "clinicctl")
	require.Equal(t, Config{Enabled: true, ServiceName: "clinicctl", OTLPEndpoint: "jaeger:4317", SampleRatio: 0.5}, cfg)
}
