package manifold_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoggingMetricsCollector verifies the logged metric lines.
func TestLoggingMetricsCollector(t *testing.T) {
	var buf bytes.Buffer
	collector := manifold.NewLoggingMetricsCollector(log.New(&buf, "", 0))

	ctx := context.Background()
	collector.PipeStarted(ctx, "feeds", "fetch")
	collector.PipeCompleted(ctx, "feeds", "fetch", 125*time.Millisecond, 10, nil)
	collector.PoolSized(ctx, "feeds", 4, 8)
	collector.CollectionStarted(ctx, "feeds", 3)
	collector.CollectionCompleted(ctx, "feeds", time.Second, 30, nil)

	logged := buf.String()
	for _, want := range []string{
		"METRICS: pipeline 'feeds' stage 'fetch' started",
		"METRICS: pipeline 'feeds' stage 'fetch' completed 10 items",
		"METRICS: pipeline 'feeds' using 4 workers with chunk size 8",
		"METRICS: collection 'feeds' started with 3 sources",
		"METRICS: collection 'feeds' completed 30 items",
	} {
		assert.Contains(t, logged, want)
	}
}

// TestLoggingMetricsCollectorFailures verifies the failure lines.
func TestLoggingMetricsCollectorFailures(t *testing.T) {
	var buf bytes.Buffer
	collector := manifold.NewLoggingMetricsCollector(log.New(&buf, "", 0))

	ctx := context.Background()
	boom := errors.New("boom")
	collector.PipeCompleted(ctx, "feeds", "fetch", time.Millisecond, 2, boom)
	collector.CollectionCompleted(ctx, "feeds", time.Millisecond, 0, boom)

	logged := buf.String()
	assert.Contains(t, logged, "METRICS: pipeline 'feeds' stage 'fetch' failed after 2 items")
	assert.Contains(t, logged, "METRICS: collection 'feeds' failed after 0 items")
	assert.Contains(t, logged, "boom")
}

// TestMetricsFactory verifies collector selection from configuration.
func TestMetricsFactory(t *testing.T) {
	factory := manifold.NewObservabilityFactory()

	// Disabled metrics use the noop collector regardless of type.
	collector, err := factory.CreateMetricsCollector(manifold.MetricsConfig{Enabled: false, Type: manifold.MetricsTypeLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &manifold.NoopMetricsCollector{}, collector)

	// Enabled log metrics use the logging collector.
	collector, err = factory.CreateMetricsCollector(manifold.MetricsConfig{Enabled: true, Type: manifold.MetricsTypeLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &manifold.LoggingMetricsCollector{}, collector)

	// An empty type means noop.
	collector, err = factory.CreateMetricsCollector(manifold.MetricsConfig{Enabled: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &manifold.NoopMetricsCollector{}, collector)

	// Unsupported backends are rejected.
	_, err = factory.CreateMetricsCollector(manifold.MetricsConfig{Enabled: true, Type: "statsd"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported metrics type")
}

// TestTracerProviderFactory verifies tracer provider selection from
// configuration.
func TestTracerProviderFactory(t *testing.T) {
	factory := manifold.NewObservabilityFactory()

	// Disabled tracing uses the noop provider.
	provider, err := factory.CreateTracerProvider(manifold.TracingConfig{Enabled: false}, "svc")
	require.NoError(t, err)
	assert.IsType(t, &manifold.NoopTracerProvider{}, provider)
	assert.NotNil(t, provider.Tracer("svc"))
	require.NoError(t, provider.Shutdown(context.Background()))

	// OTLP requires an endpoint.
	_, err = factory.CreateTracerProvider(manifold.TracingConfig{Enabled: true, Type: manifold.TracingTypeOTLP}, "svc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")

	// Unsupported backends are rejected.
	_, err = factory.CreateTracerProvider(manifold.TracingConfig{Enabled: true, Type: "zipkin"}, "svc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported tracing type")
}

// TestDefaultMetricsCollector verifies the package default.
func TestDefaultMetricsCollector(t *testing.T) {
	assert.IsType(t, &manifold.NoopMetricsCollector{}, manifold.DefaultMetricsCollector)
}
