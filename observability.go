package manifold

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider hands out tracers and owns their lifecycle. It decouples
// the engine from a concrete OpenTelemetry SDK setup.
type TracerProvider interface {
	// Tracer returns a tracer from the underlying provider.
	Tracer(name string, options ...otelTrace.TracerOption) otelTrace.Tracer
	// Shutdown gracefully shuts down the tracer provider.
	Shutdown(ctx context.Context) error
}

// NoopTracerProvider hands out tracers that record nothing. It is used when
// tracing is disabled.
type NoopTracerProvider struct{}

// Ensure NoopTracerProvider implements TracerProvider.
var _ TracerProvider = (*NoopTracerProvider)(nil)

// Tracer returns a tracer whose spans are discarded.
func (*NoopTracerProvider) Tracer(name string, options ...otelTrace.TracerOption) otelTrace.Tracer {
	return noop.NewTracerProvider().Tracer(name, options...)
}

// Shutdown is a no-op.
func (*NoopTracerProvider) Shutdown(_ context.Context) error {
	return nil
}

// OTLPTracerProvider wraps the OpenTelemetry SDK TracerProvider for OTLP
// export.
type OTLPTracerProvider struct {
	tp *trace.TracerProvider
}

// Ensure OTLPTracerProvider implements TracerProvider.
var _ TracerProvider = (*OTLPTracerProvider)(nil)

// Tracer returns a tracer from the underlying provider.
func (p *OTLPTracerProvider) Tracer(name string, options ...otelTrace.TracerOption) otelTrace.Tracer {
	return p.tp.Tracer(name, options...)
}

// Shutdown gracefully shuts down the tracer provider, flushing buffered
// spans.
func (p *OTLPTracerProvider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// ObservabilityFactory creates observability components from pipeline
// configuration.
type ObservabilityFactory struct{}

// NewObservabilityFactory creates a new factory for observability components.
func NewObservabilityFactory() *ObservabilityFactory {
	return &ObservabilityFactory{}
}

// CreateTracerProvider creates a TracerProvider based on the tracing
// configuration.
func (f *ObservabilityFactory) CreateTracerProvider(
	config TracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if !config.Enabled {
		return &NoopTracerProvider{}, nil
	}

	switch config.Type {
	case TracingTypeNoop, "":
		return &NoopTracerProvider{}, nil
	case TracingTypeOTLP:
		return f.createOTLPTracerProvider(config, serviceName)
	default:
		return nil, fmt.Errorf("unsupported tracing type: %s", config.Type)
	}
}

// CreateMetricsCollector creates a MetricsCollector based on the metrics
// configuration. The logger backs the log-based collector.
func (f *ObservabilityFactory) CreateMetricsCollector(
	config MetricsConfig,
	logger *log.Logger,
) (MetricsCollector, error) {
	if !config.Enabled {
		return &NoopMetricsCollector{}, nil
	}

	switch config.Type {
	case MetricsTypeNoop, "":
		return &NoopMetricsCollector{}, nil
	case MetricsTypeLog:
		return NewLoggingMetricsCollector(logger), nil
	default:
		return nil, fmt.Errorf("unsupported metrics type: %s", config.Type)
	}
}

func (f *ObservabilityFactory) createOTLPTracerProvider(
	config TracingConfig,
	serviceName string,
) (TracerProvider, error) {
	if config.Endpoint == "" {
		return nil, errors.New("otlp endpoint is required")
	}

	// Create OTLP exporter
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Create resource with service information
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create trace provider
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)

	return &OTLPTracerProvider{tp: tp}, nil
}

// LoggingMetricsCollector is a simple implementation that logs metrics to a
// logger. It serves as a development and testing implementation.
type LoggingMetricsCollector struct {
	logger *log.Logger
}

// NewLoggingMetricsCollector creates a collector that writes every metric
// event to logger. A nil logger falls back to the standard logger.
func NewLoggingMetricsCollector(logger *log.Logger) *LoggingMetricsCollector {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingMetricsCollector{logger: logger}
}

// Ensure LoggingMetricsCollector implements MetricsCollector.
var _ MetricsCollector = (*LoggingMetricsCollector)(nil)

// PipeStarted logs when a pipe evaluation starts.
func (l *LoggingMetricsCollector) PipeStarted(_ context.Context, pipeline, stage string) {
	l.logger.Printf("METRICS: pipeline '%s' stage '%s' started", pipeline, stage)
}

// PipeCompleted logs when a pipe evaluation completes.
func (l *LoggingMetricsCollector) PipeCompleted(
	_ context.Context,
	pipeline, stage string,
	duration time.Duration,
	items int,
	err error,
) {
	if err != nil {
		l.logger.Printf(
			"METRICS: pipeline '%s' stage '%s' failed after %d items in %v: %v",
			pipeline,
			stage,
			items,
			duration,
			err,
		)
	} else {
		l.logger.Printf(
			"METRICS: pipeline '%s' stage '%s' completed %d items in %v",
			pipeline,
			stage,
			items,
			duration,
		)
	}
}

// PoolSized logs the resolved concurrency of a parallel evaluation.
func (l *LoggingMetricsCollector) PoolSized(_ context.Context, pipeline string, workers, chunkSize int) {
	l.logger.Printf("METRICS: pipeline '%s' using %d workers with chunk size %d", pipeline, workers, chunkSize)
}

// CollectionStarted logs when a collection evaluation starts.
func (l *LoggingMetricsCollector) CollectionStarted(_ context.Context, name string, sources int) {
	l.logger.Printf("METRICS: collection '%s' started with %d sources", name, sources)
}

// CollectionCompleted logs when a collection evaluation completes.
func (l *LoggingMetricsCollector) CollectionCompleted(
	_ context.Context,
	name string,
	duration time.Duration,
	items int,
	err error,
) {
	if err != nil {
		l.logger.Printf("METRICS: collection '%s' failed after %d items in %v: %v", name, items, duration, err)
	} else {
		l.logger.Printf("METRICS: collection '%s' completed %d items in %v", name, items, duration)
	}
}
