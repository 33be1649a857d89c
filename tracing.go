package manifold

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pipelab/go-manifold"

// TracedPipe wraps a Pipe with OpenTelemetry tracing. One span covers a
// whole evaluation, opening on the first pull and closing when the stream
// ends.
type TracedPipe struct {
	// The underlying pipe
	pipe *Pipe

	// Span name
	name string

	// Tracer to use
	tracer trace.Tracer

	// Attributes to add to spans
	attributes []attribute.KeyValue
}

// TracedPipeOption is a function that configures a TracedPipe.
type TracedPipeOption func(*TracedPipe)

// WithPipeSpanName sets a custom span name for the TracedPipe.
func WithPipeSpanName(name string) TracedPipeOption {
	return func(tp *TracedPipe) {
		tp.name = name
	}
}

// WithPipeTracer sets a custom tracer for the TracedPipe.
func WithPipeTracer(tracer trace.Tracer) TracedPipeOption {
	return func(tp *TracedPipe) {
		tp.tracer = tracer
	}
}

// WithPipeSpanAttributes adds custom attributes to spans created by the
// TracedPipe.
func WithPipeSpanAttributes(attrs ...attribute.KeyValue) TracedPipeOption {
	return func(tp *TracedPipe) {
		tp.attributes = append(tp.attributes, attrs...)
	}
}

// NewTracedPipe creates a new TracedPipe that wraps the given pipe.
func NewTracedPipe(pipe *Pipe, options ...TracedPipeOption) *TracedPipe {
	if pipe == nil {
		panic("manifold.NewTracedPipe: pipe cannot be nil")
	}
	tp := &TracedPipe{
		pipe:       pipe,
		name:       "manifold.pipe",
		tracer:     otel.Tracer(tracerName),
		attributes: []attribute.KeyValue{},
	}

	// Apply options
	for _, option := range options {
		option(tp)
	}

	return tp
}

// Output returns the traced result stream. The span carries the stage name,
// run identity and resolved sizing, plus the item count and duration once
// the evaluation ends.
func (tp *TracedPipe) Output(ctx context.Context) *Stream[any] {
	return DeferStream(func() (*Stream[any], error) {
		spanCtx, span := tp.tracer.Start(
			ctx,
			tp.name,
			trace.WithAttributes(
				append(
					tp.attributes,
					attribute.String("manifold.stage", tp.pipe.Stage().Name()),
					attribute.String("manifold.run_id", tp.pipe.RunID()),
					attribute.Bool("manifold.parallel", tp.pipe.Parallel()),
					attribute.Int("manifold.workers", tp.pipe.Workers()),
				)...,
			),
		)

		startTime := time.Now()
		in := tp.pipe.Output(spanCtx)
		items := 0
		return NewStream(func() (any, error) {
			v, err := in.Next()
			if err != nil {
				duration := time.Since(startTime)
				span.SetAttributes(
					attribute.Float64("duration_ms", float64(duration.Milliseconds())),
					attribute.Int("manifold.items", items),
				)
				if errors.Is(err, ErrEndOfStream) {
					span.SetStatus(codes.Ok, "")
				} else {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				span.End()
				return nil, err
			}
			items++
			return v, nil
		}), nil
	})
}

// List evaluates the traced pipe and collects every result.
func (tp *TracedPipe) List(ctx context.Context) ([]any, error) {
	return tp.Output(ctx).Collect()
}

// TracedCollection wraps a Collection with collection-specific tracing.
type TracedCollection struct {
	collection *Collection
	name       string
	tracer     trace.Tracer
	attributes []attribute.KeyValue
}

// NewTracedCollection creates a traced wrapper around a Collection.
func NewTracedCollection(
	collection *Collection,
	name string,
	attributes ...attribute.KeyValue,
) *TracedCollection {
	if collection == nil {
		panic("manifold.NewTracedCollection: collection cannot be nil")
	}
	return &TracedCollection{
		collection: collection,
		name:       name,
		tracer:     otel.Tracer(tracerName),
		attributes: attributes,
	}
}

// WithTracer sets a custom tracer for the traced collection.
func (tc *TracedCollection) WithTracer(tracer trace.Tracer) *TracedCollection {
	tc.tracer = tracer
	return tc
}

// Fetch returns the traced merged stream.
func (tc *TracedCollection) Fetch(ctx context.Context) *Stream[any] {
	return DeferStream(func() (*Stream[any], error) {
		spanCtx, span := tc.tracer.Start(
			ctx,
			tc.name,
			trace.WithAttributes(
				append(
					tc.attributes,
					attribute.String("manifold.run_id", tc.collection.RunID()),
					attribute.Bool("manifold.parallel", tc.collection.Parallel()),
					attribute.Int("manifold.workers", tc.collection.Workers()),
				)...,
			),
		)

		startTime := time.Now()
		in := tc.collection.Fetch(spanCtx)
		items := 0
		return NewStream(func() (any, error) {
			v, err := in.Next()
			if err != nil {
				duration := time.Since(startTime)
				span.SetAttributes(
					attribute.Float64("duration_ms", float64(duration.Milliseconds())),
					attribute.Int("manifold.items", items),
				)
				if errors.Is(err, ErrEndOfStream) {
					span.SetStatus(codes.Ok, "")
				} else {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				span.End()
				return nil, err
			}
			items++
			return v, nil
		}), nil
	})
}

// List evaluates the traced collection and collects every result.
func (tc *TracedCollection) List(ctx context.Context) ([]any, error) {
	return tc.Fetch(ctx).Collect()
}
