package manifold_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"
)

// newSourceRegistry builds a registry with source-style stages used by the
// collection tests. "emit" yields its configured items; "fetch" marks the
// default source type.
func newSourceRegistry(t *testing.T) *manifold.Registry {
	t.Helper()
	registry := manifold.NewRegistry()

	emit := func(_ context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
		items, _ := conf["items"].([]any)
		return manifold.StreamOf(items...), nil
	}
	registry.MustRegister(manifold.NewOperator("emit", emit))
	registry.MustRegister(manifold.NewOperator("fetch", emit))
	registry.MustRegister(manifold.NewOperator("broken_source", func(_ context.Context, _ *manifold.Stream[any], _ manifold.Conf) (*manifold.Stream[any], error) {
		return nil, errors.New("bang")
	}))
	return registry
}

// TestNewCollectionUnknownSource verifies that an unregistered source type
// fails construction.
func TestNewCollectionUnknownSource(t *testing.T) {
	registry := newSourceRegistry(t)

	_, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1}},
		{"type": "nope"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source 1:")

	var unknown *manifold.UnknownStageError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Name)
}

// TestNewCollectionNegativeWorkers verifies the sizing guard.
func TestNewCollectionNegativeWorkers(t *testing.T) {
	registry := newSourceRegistry(t)

	_, err := manifold.NewCollection(registry, []manifold.Source{{"type": "emit"}},
		manifold.WithCollectionWorkers(-2),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker count cannot be negative")
}

// TestCollectionSequential verifies that sequential evaluation keeps source
// order.
func TestCollectionSequential(t *testing.T) {
	registry := newSourceRegistry(t)

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{"a1", "a2"}},
		{"type": "emit", "items": []any{"b1", "b2"}},
	})
	require.NoError(t, err)
	assert.False(t, coll.Parallel())

	items, err := coll.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"a1", "a2", "b1", "b2"}, items)
}

// TestCollectionDefaultSourceType verifies that a source without a type
// declaration runs the fetch stage.
func TestCollectionDefaultSourceType(t *testing.T) {
	registry := newSourceRegistry(t)

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"items": []any{"fetched"}},
	})
	require.NoError(t, err)

	items, err := coll.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"fetched"}, items)
}

// TestCollectionDerivedWorkers verifies I/O-bound worker derivation from
// the source count.
func TestCollectionDerivedWorkers(t *testing.T) {
	registry := newSourceRegistry(t)

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit"}, {"type": "emit"}, {"type": "emit"},
	})
	require.NoError(t, err)

	assert.Equal(t, manifold.WorkerCount(3, manifold.IOBound), coll.Workers())
}

// TestCollectionParallel verifies concurrent source evaluation with every
// result delivered.
func TestCollectionParallel(t *testing.T) {
	defer goleak.VerifyNone(t)

	registry := newSourceRegistry(t)
	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1, 2}},
		{"type": "emit", "items": []any{3}},
		{"type": "emit", "items": []any{4, 5}},
		{"type": "emit", "items": []any{6}},
	},
		manifold.WithCollectionParallel(),
		manifold.WithCollectionWorkers(2),
	)
	require.NoError(t, err)
	assert.True(t, coll.Parallel())
	assert.Equal(t, 2, coll.Workers())

	items, err := coll.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{1, 2, 3, 4, 5, 6}, items)
}

// TestCollectionDelayInjection verifies that the collection delay reaches
// every source's configuration.
func TestCollectionDelayInjection(t *testing.T) {
	registry := manifold.NewRegistry()
	var mu sync.Mutex
	seen := map[string]time.Duration{}
	registry.MustRegister(manifold.NewOperator("probe", func(_ context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
		mu.Lock()
		seen[conf.GetString("tag", "")] = conf.GetDuration("delay", 0)
		mu.Unlock()
		return manifold.StreamOf[any](conf.GetString("tag", "")), nil
	}))

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "probe", "tag": "one"},
		{"type": "probe", "tag": "two"},
	},
		manifold.WithDelay(250*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = coll.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, seen["one"])
	assert.Equal(t, 250*time.Millisecond, seen["two"])
}

// TestCollectionSourceError verifies that a failing source names itself in
// the error and ends the merged stream.
func TestCollectionSourceError(t *testing.T) {
	registry := newSourceRegistry(t)

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1}},
		{"type": "broken_source"},
	})
	require.NoError(t, err)

	_, err = coll.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `source "broken_source":`)

	var stageErr *manifold.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "broken_source", stageErr.Stage)
}

// TestCollectionRateLimit verifies that evaluations are paced by the rate
// limiter.
func TestCollectionRateLimit(t *testing.T) {
	registry := newSourceRegistry(t)

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1}},
		{"type": "emit", "items": []any{2}},
		{"type": "emit", "items": []any{3}},
	},
		manifold.WithRateLimit(rate.Limit(100), 1),
	)
	require.NoError(t, err)

	start := time.Now()
	items, err := coll.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	// Three starts at 100 per second with burst 1 take two full intervals.
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

// TestCollectionLazy verifies that evaluation starts on the first pull, not
// at Fetch.
func TestCollectionLazy(t *testing.T) {
	registry := newSourceRegistry(t)
	collector := &recordingCollector{}

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1}},
	},
		manifold.WithCollectionMetricsCollector(collector),
	)
	require.NoError(t, err)

	out := coll.Fetch(context.Background())
	assert.Empty(t, collector.collectionStarted)

	_, err = out.Collect()
	require.NoError(t, err)
	assert.Len(t, collector.collectionStarted, 1)
}

// TestCollectionMetrics verifies the collection and per-source callbacks.
func TestCollectionMetrics(t *testing.T) {
	registry := newSourceRegistry(t)
	collector := &recordingCollector{}

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1, 2}},
		{"type": "emit", "items": []any{3, 4}},
	},
		manifold.WithCollectionName("feeds"),
		manifold.WithCollectionMetricsCollector(collector),
	)
	require.NoError(t, err)
	assert.Equal(t, "feeds", coll.Name())

	_, err = coll.List(context.Background())
	require.NoError(t, err)

	require.Len(t, collector.collectionStarted, 1)
	assert.Equal(t, 2, collector.collectionStarted[0])

	require.Len(t, collector.collectionCompleted, 1)
	assert.Equal(t, "feeds", collector.collectionCompleted[0].name)
	assert.Equal(t, 4, collector.collectionCompleted[0].items)
	assert.NoError(t, collector.collectionCompleted[0].err)

	// Source pipes inherit the collection's name and collector.
	assert.Equal(t, []string{"feeds/emit", "feeds/emit"}, collector.pipeStarted)
}

// TestCollectionFeedsPipe verifies a collection as the source of a pipe.
func TestCollectionFeedsPipe(t *testing.T) {
	registry := newSourceRegistry(t)
	registry.MustRegister(manifold.NewProcessor("double", func(_ context.Context, item any, _ manifold.Conf) ([]any, error) {
		return []any{item.(int) * 2}, nil
	}))

	coll, err := manifold.NewCollection(registry, []manifold.Source{
		{"type": "emit", "items": []any{1, 2}},
		{"type": "emit", "items": []any{3}},
	})
	require.NoError(t, err)

	pipe, err := manifold.NewPipe(registry, "double", manifold.WithSource(coll))
	require.NoError(t, err)

	items, err := pipe.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4, 6}, items)
}
