package manifold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Collection evaluates one pipe per source descriptor and merges every
// result into a single stream. Merge order across sources is not defined;
// within a single source, that source's own order is kept.
type Collection struct {
	registry *Registry
	sources  []Source
	parallel bool
	workers  int
	delay    time.Duration
	limiter  *rate.Limiter
	runID    string
	name     string
	metrics  MetricsCollector
	logger   *log.Logger
}

// CollectionOption configures a collection at construction.
type CollectionOption func(*Collection)

// WithCollectionParallel requests that sources are evaluated concurrently.
func WithCollectionParallel() CollectionOption {
	return func(c *Collection) {
		c.parallel = true
	}
}

// WithCollectionWorkers fixes how many sources are evaluated at once. Zero
// means derive from the source count.
func WithCollectionWorkers(workers int) CollectionOption {
	return func(c *Collection) {
		c.workers = workers
	}
}

// WithDelay injects a pause into every source's configuration under the
// "delay" key. Stages that talk to remote services honor it between
// requests.
func WithDelay(delay time.Duration) CollectionOption {
	return func(c *Collection) {
		c.delay = delay
	}
}

// WithRateLimit caps how often source evaluations may start, across all
// workers.
func WithRateLimit(limit rate.Limit, burst int) CollectionOption {
	return func(c *Collection) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithCollectionMetricsCollector sets the metrics collector. A nil
// collector keeps the default.
func WithCollectionMetricsCollector(collector MetricsCollector) CollectionOption {
	return func(c *Collection) {
		if collector != nil {
			c.metrics = collector
		}
	}
}

// WithCollectionLogger sets the logger. A nil logger keeps the default,
// which discards everything.
func WithCollectionLogger(logger *log.Logger) CollectionOption {
	return func(c *Collection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCollectionName sets the name reported to metrics and logs.
func WithCollectionName(name string) CollectionOption {
	return func(c *Collection) {
		c.name = name
	}
}

// NewCollection binds the stage behind every source descriptor. A source
// with an unregistered stage type fails construction, not evaluation.
func NewCollection(registry *Registry, sources []Source, opts ...CollectionOption) (*Collection, error) {
	if registry == nil {
		panic("manifold.NewCollection: registry cannot be nil")
	}
	c := &Collection{
		registry: registry,
		sources:  sources,
		runID:    uuid.NewString(),
		name:     "collection",
		metrics:  DefaultMetricsCollector,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	for i, src := range sources {
		if _, err := registry.Resolve(src.StageType()); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}
	if c.workers < 0 {
		return nil, fmt.Errorf("worker count cannot be negative, got %d", c.workers)
	}
	if c.workers == 0 {
		c.workers = WorkerCount(len(sources), IOBound)
	}
	return c, nil
}

// Fetch returns the merged result stream. Nothing runs until the first Next
// call; each call starts an independent evaluation.
func (c *Collection) Fetch(ctx context.Context) *Stream[any] {
	return DeferStream(func() (*Stream[any], error) {
		return c.execute(ctx)
	})
}

// List evaluates the collection and collects every result.
func (c *Collection) List(ctx context.Context) ([]any, error) {
	return c.Fetch(ctx).Collect()
}

func (c *Collection) execute(ctx context.Context) (*Stream[any], error) {
	start := time.Now()
	c.metrics.CollectionStarted(ctx, c.name, len(c.sources))
	c.logger.Printf("collection %s: fetching %d sources (workers=%d parallel=%t)",
		c.runID, len(c.sources), c.workers, c.parallel)

	run := func(ctx context.Context, src Source) ([]any, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		pipe, err := c.pipeFor(src)
		if err != nil {
			return nil, err
		}
		items, err := pipe.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", src.StageType(), err)
		}
		return items, nil
	}

	var out *Stream[any]
	if c.parallel && len(c.sources) > 0 {
		pool := NewPool(c.workers)
		chunk := ChunkSize(len(c.sources), c.workers)
		results := Multiplex(Submit(ctx, pool, StreamOf(c.sources...), run, chunk, false))
		released := false
		out = NewStream(func() (any, error) {
			v, err := results.Next()
			if err != nil && !released {
				released = true
				pool.Close()
				pool.Join()
			}
			return v, err
		})
	} else {
		mapped := MapStream(StreamOf(c.sources...), func(src Source) ([]any, error) {
			return run(ctx, src)
		})
		out = Multiplex(mapped)
	}
	return c.completing(ctx, start, out), nil
}

// pipeFor builds the sub-pipe for one source. The source descriptor minus
// its type becomes the stage configuration, with the collection delay
// injected when set.
func (c *Collection) pipeFor(src Source) (*Pipe, error) {
	conf := src.Conf()
	if c.delay > 0 {
		conf["delay"] = c.delay
	}
	return NewPipe(c.registry, src.StageType(),
		WithConf(conf),
		func(s *pipeSettings) {
			s.metrics = c.metrics
			s.logger = c.logger
			s.runID = c.runID
			s.name = c.name
		},
	)
}

func (c *Collection) completing(ctx context.Context, start time.Time, in *Stream[any]) *Stream[any] {
	items := 0
	return NewStream(func() (any, error) {
		v, err := in.Next()
		if err != nil {
			cause := err
			if errors.Is(err, ErrEndOfStream) {
				cause = nil
			}
			c.metrics.CollectionCompleted(ctx, c.name, time.Since(start), items, cause)
			if cause != nil {
				c.logger.Printf("collection %s: failed after %d items: %v", c.runID, items, cause)
			} else {
				c.logger.Printf("collection %s: emitted %d items in %s", c.runID, items, time.Since(start))
			}
			return nil, err
		}
		items++
		return v, nil
	})
}

// Name returns the collection name used in metrics and logs.
func (c *Collection) Name() string { return c.name }

// RunID returns the identity shared by the collection and its source pipes.
func (c *Collection) RunID() string { return c.runID }

// Parallel reports whether sources are evaluated concurrently.
func (c *Collection) Parallel() bool { return c.parallel }

// Workers returns the resolved source-level worker count.
func (c *Collection) Workers() int { return c.workers }
