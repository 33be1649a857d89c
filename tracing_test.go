package manifold_test

import (
	"context"
	"testing"

	"github.com/pipelab/go-manifold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newSpanRecorder wires an in-memory span recorder into a tracer.
func newSpanRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, provider
}

// findAttr looks up one attribute by key.
func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// TestTracedPipe verifies that one span covers a successful evaluation.
func TestTracedPipe(t *testing.T) {
	recorder, provider := newSpanRecorder(t)
	registry := newStageRegistry(t)

	pipe, err := manifold.NewPipe(registry, "double", manifold.WithSource(intItems(3)))
	require.NoError(t, err)

	traced := manifold.NewTracedPipe(pipe,
		manifold.WithPipeTracer(provider.Tracer("test")),
		manifold.WithPipeSpanName("evaluate"),
		manifold.WithPipeSpanAttributes(attribute.String("feed", "news")),
	)

	items, err := traced.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{0, 2, 4}, items)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "evaluate", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	attrs := span.Attributes()
	if v, ok := findAttr(attrs, "manifold.stage"); assert.True(t, ok) {
		assert.Equal(t, "double", v.AsString())
	}
	if v, ok := findAttr(attrs, "manifold.items"); assert.True(t, ok) {
		assert.Equal(t, int64(3), v.AsInt64())
	}
	if v, ok := findAttr(attrs, "feed"); assert.True(t, ok) {
		assert.Equal(t, "news", v.AsString())
	}
}

// TestTracedPipeLazy verifies that no span starts before the stream is
// pulled.
func TestTracedPipeLazy(t *testing.T) {
	recorder, provider := newSpanRecorder(t)
	registry := newStageRegistry(t)

	pipe, err := manifold.NewPipe(registry, "double", manifold.WithSource(intItems(3)))
	require.NoError(t, err)

	traced := manifold.NewTracedPipe(pipe, manifold.WithPipeTracer(provider.Tracer("test")))
	out := traced.Output(context.Background())
	assert.Empty(t, recorder.Started())

	_, err = out.Collect()
	require.NoError(t, err)
	assert.Len(t, recorder.Ended(), 1)

	// The default span name applies when none is set.
	assert.Equal(t, "manifold.pipe", recorder.Ended()[0].Name())
}

// TestTracedPipeError verifies span status on a failed evaluation.
func TestTracedPipeError(t *testing.T) {
	recorder, provider := newSpanRecorder(t)
	registry := newStageRegistry(t)

	pipe, err := manifold.NewPipe(registry, "fail_at",
		manifold.WithSource(intItems(5)),
		manifold.WithConf(manifold.Conf{"value": 2}),
	)
	require.NoError(t, err)

	traced := manifold.NewTracedPipe(pipe, manifold.WithPipeTracer(provider.Tracer("test")))
	_, err = traced.List(context.Background())
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Status().Description, "fail_at")

	// The items delivered before the failure are recorded.
	if v, ok := findAttr(span.Attributes(), "manifold.items"); assert.True(t, ok) {
		assert.Equal(t, int64(2), v.AsInt64())
	}
}

// TestTracedPipeNilPipe verifies the constructor guard.
func TestTracedPipeNilPipe(t *testing.T) {
	require.Panics(t, func() {
		manifold.NewTracedPipe(nil)
	})
}

// TestTracedCollection verifies span coverage of a collection evaluation.
func TestTracedCollection(t *testing.T) {
	recorder, provider := newSpanRecorder(t)
	registry := newSourceRegistry(t)

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1, 2}},
		{"type": "emit", "items": []any{3}},
	})
	require.NoError(t, err)

	traced := manifold.NewTracedCollection(coll, "fanout", attribute.String("feed", "news")).
		WithTracer(provider.Tracer("test"))

	items, err := traced.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "fanout", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	if v, ok := findAttr(span.Attributes(), "manifold.items"); assert.True(t, ok) {
		assert.Equal(t, int64(3), v.AsInt64())
	}
	if v, ok := findAttr(span.Attributes(), "manifold.run_id"); assert.True(t, ok) {
		assert.Equal(t, coll.RunID(), v.AsString())
	}
}

// TestTracedCollectionNilCollection verifies the constructor guard.
func TestTracedCollectionNilCollection(t *testing.T) {
	require.Panics(t, func() {
		manifold.NewTracedCollection(nil, "x")
	})
}
