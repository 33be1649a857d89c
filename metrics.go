package manifold

import (
	"context"
	"time"
)

// MetricsCollector defines an interface for collecting metrics about
// executor activity. This allows integration with various monitoring
// systems without coupling the engine to any of them.
type MetricsCollector interface {
	// PipeStarted is called when a pipe evaluation begins.
	PipeStarted(ctx context.Context, pipeline, stage string)
	// PipeCompleted is called when a pipe evaluation ends, successfully or
	// not. items is the number of results the evaluation produced before it
	// ended.
	PipeCompleted(ctx context.Context, pipeline, stage string, duration time.Duration, items int, err error)
	// PoolSized is called when a parallel evaluation resolves its worker
	// pool, reporting the effective concurrency.
	PoolSized(ctx context.Context, pipeline string, workers, chunkSize int)
	// CollectionStarted is called when a collection evaluation begins.
	CollectionStarted(ctx context.Context, name string, sources int)
	// CollectionCompleted is called when a collection evaluation ends.
	CollectionCompleted(ctx context.Context, name string, duration time.Duration, items int, err error)
}

// NoopMetricsCollector is a metrics collector that does nothing. It is the
// default when no collector is configured.
type NoopMetricsCollector struct{}

// Ensure NoopMetricsCollector implements MetricsCollector
var _ MetricsCollector = (*NoopMetricsCollector)(nil)

// PipeStarted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) PipeStarted(_ context.Context, _, _ string) {}

// PipeCompleted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) PipeCompleted(_ context.Context, _, _ string, _ time.Duration, _ int, _ error) {
}

// PoolSized implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) PoolSized(_ context.Context, _ string, _, _ int) {}

// CollectionStarted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) CollectionStarted(_ context.Context, _ string, _ int) {}

// CollectionCompleted implements MetricsCollector interface for NoopMetricsCollector.
func (*NoopMetricsCollector) CollectionCompleted(_ context.Context, _ string, _ time.Duration, _ int, _ error) {
}

// DefaultMetricsCollector is the collector used when none is provided.
var DefaultMetricsCollector MetricsCollector = &NoopMetricsCollector{}
