package manifold

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
)

// execMode is the fully resolved execution plan for one pipe: whether items
// run in parallel and under what sizing. It is derived once at construction
// from the caller's requests and the source length estimate.
type execMode struct {
	parallel  bool
	workload  Workload
	workers   int
	chunkSize int
	ordered   bool
}

func (m execMode) String() string {
	if !m.parallel {
		return "sequential"
	}
	order := "unordered"
	if m.ordered {
		order = "ordered"
	}
	return fmt.Sprintf("parallel %s workload=%s workers=%d chunk=%d", order, m.workload, m.workers, m.chunkSize)
}

// pipeSource is a bound input: a construction-time length estimate plus a
// way to open the element stream when evaluation starts.
type pipeSource struct {
	estimate int
	open     func(ctx context.Context) (*Stream[any], error)
}

// Pipe evaluates a single registered stage over a source. Construction
// resolves the stage and the execution mode eagerly, so misconfiguration
// surfaces before any work starts; the work itself is deferred until the
// stream returned by Output is pulled. A pipe can be evaluated any number of
// times as long as its source supports it.
type Pipe struct {
	registry  *Registry
	stageName string
	stage     Stage
	conf      Conf
	source    pipeSource
	mode      execMode
	scope     *Scope
	settings  pipeSettings
	runID     string
	name      string
	metrics   MetricsCollector
	logger    *log.Logger
}

// pipeSettings records the caller's requests before derivation. Then uses it
// to decide what a chained pipe inherits.
type pipeSettings struct {
	conf      Conf
	source    any
	parallel  bool
	workload  Workload
	workers   int
	chunkSize int
	ordered   bool
	scope     *Scope
	metrics   MetricsCollector
	logger    *log.Logger
	name      string
	runID     string
}

// PipeOption configures a pipe at construction.
type PipeOption func(*pipeSettings)

// WithConf sets the configuration passed to the stage on every call.
func WithConf(conf Conf) PipeOption {
	return func(s *pipeSettings) {
		s.conf = conf
	}
}

// WithSource sets the pipe's input. Accepted values are nil, []any, []Conf,
// []map[string]any, a *Stream[any], a *Pipe whose results feed this one, or
// a *Collection feeding this pipe its merged results. A stream source is
// consumed by the first evaluation and cannot be replayed. Any other type
// fails construction.
func WithSource(source any) PipeOption {
	return func(s *pipeSettings) {
		s.source = source
	}
}

// WithParallel requests parallel evaluation. It only takes effect for
// processor stages; operators always receive the whole stream on the calling
// goroutine. A known-empty source keeps parallel mode with a single worker.
func WithParallel() PipeOption {
	return func(s *pipeSettings) {
		s.parallel = true
	}
}

// WithWorkload declares whether the stage is CPU or I/O bound, which sets
// the ceiling for the derived worker count.
func WithWorkload(workload Workload) PipeOption {
	return func(s *pipeSettings) {
		s.workload = workload
	}
}

// WithWorkers fixes the worker count instead of deriving it from the source
// length. Zero means derive.
func WithWorkers(workers int) PipeOption {
	return func(s *pipeSettings) {
		s.workers = workers
	}
}

// WithChunkSize fixes how many items are handed to a worker at a time
// instead of deriving it. Zero means derive.
func WithChunkSize(chunkSize int) PipeOption {
	return func(s *pipeSettings) {
		s.chunkSize = chunkSize
	}
}

// WithOrdered controls whether parallel results keep source order. Ordered
// is the default; unordered delivers results as workers finish.
func WithOrdered(ordered bool) PipeOption {
	return func(s *pipeSettings) {
		s.ordered = ordered
	}
}

// WithScope makes the pipe borrow workers from scope instead of owning a
// pool per evaluation. The scope stays open after the pipe finishes; the
// caller closes it.
func WithScope(scope *Scope) PipeOption {
	return func(s *pipeSettings) {
		s.scope = scope
	}
}

// WithMetricsCollector sets the metrics collector. A nil collector keeps
// the default.
func WithMetricsCollector(collector MetricsCollector) PipeOption {
	return func(s *pipeSettings) {
		if collector != nil {
			s.metrics = collector
		}
	}
}

// WithLogger sets the logger for evaluation progress. A nil logger keeps
// the default, which discards everything.
func WithLogger(logger *log.Logger) PipeOption {
	return func(s *pipeSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithName sets the pipeline name reported to metrics and logs. It defaults
// to the stage name and is inherited across Then.
func WithName(name string) PipeOption {
	return func(s *pipeSettings) {
		s.name = name
	}
}

// withLineage carries a parent pipe's identity and observability wiring into
// a chained child.
func withLineage(parent *Pipe) PipeOption {
	return func(s *pipeSettings) {
		s.metrics = parent.metrics
		s.logger = parent.logger
		s.runID = parent.runID
		s.name = parent.name
	}
}

// NewPipe binds the named stage from registry into an executable pipe.
// Unknown stages, unsupported source types and invalid sizing are reported
// here rather than at evaluation time.
func NewPipe(registry *Registry, stage string, opts ...PipeOption) (*Pipe, error) {
	if registry == nil {
		panic("manifold.NewPipe: registry cannot be nil")
	}
	resolved, err := registry.Resolve(stage)
	if err != nil {
		return nil, err
	}

	settings := pipeSettings{
		workload: CPUBound,
		ordered:  true,
		metrics:  DefaultMetricsCollector,
		logger:   log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}
	if settings.workers < 0 {
		return nil, fmt.Errorf("worker count cannot be negative, got %d", settings.workers)
	}
	if settings.chunkSize < 0 {
		return nil, fmt.Errorf("chunk size cannot be negative, got %d", settings.chunkSize)
	}
	if settings.workload != CPUBound && settings.workload != IOBound {
		return nil, fmt.Errorf("unknown workload %q", settings.workload)
	}
	if settings.conf == nil {
		settings.conf = Conf{}
	}
	if settings.name == "" {
		settings.name = stage
	}
	if settings.runID == "" {
		settings.runID = uuid.NewString()
	}

	p := &Pipe{
		registry:  registry,
		stageName: stage,
		stage:     resolved,
		conf:      settings.conf,
		scope:     settings.scope,
		settings:  settings,
		runID:     settings.runID,
		name:      settings.name,
		metrics:   settings.metrics,
		logger:    settings.logger,
	}
	if err := p.bindSource(settings.source); err != nil {
		return nil, err
	}
	p.deriveMode()
	return p, nil
}

func (p *Pipe) bindSource(source any) error {
	emptySource := pipeSource{
		estimate: DefaultLengthEstimate,
		open: func(context.Context) (*Stream[any], error) {
			return EmptyStream[any](), nil
		},
	}
	switch src := source.(type) {
	case nil:
		p.source = emptySource
	case *Pipe:
		if src == nil {
			p.source = emptySource
			return nil
		}
		// Parent results are materialized when the child starts pulling,
		// which guarantees the parent's pool is released even if the child
		// stops early.
		p.source = pipeSource{
			estimate: DefaultLengthEstimate,
			open: func(ctx context.Context) (*Stream[any], error) {
				items, err := src.List(ctx)
				if err != nil {
					return nil, err
				}
				return StreamOf(items...), nil
			},
		}
	case *Collection:
		if src == nil {
			p.source = emptySource
			return nil
		}
		p.source = pipeSource{
			estimate: DefaultLengthEstimate,
			open: func(ctx context.Context) (*Stream[any], error) {
				items, err := src.List(ctx)
				if err != nil {
					return nil, err
				}
				return StreamOf(items...), nil
			},
		}
	case *Stream[any]:
		p.source = pipeSource{
			estimate: LengthEstimate(src, DefaultLengthEstimate),
			open: func(context.Context) (*Stream[any], error) {
				return src, nil
			},
		}
	case []any:
		p.source = pipeSource{
			estimate: len(src),
			open: func(context.Context) (*Stream[any], error) {
				return StreamOf(src...), nil
			},
		}
	case []Conf:
		items := make([]any, len(src))
		for i, c := range src {
			items[i] = c
		}
		p.source = pipeSource{
			estimate: len(items),
			open: func(context.Context) (*Stream[any], error) {
				return StreamOf(items...), nil
			},
		}
	case []map[string]any:
		items := make([]any, len(src))
		for i, m := range src {
			items[i] = m
		}
		p.source = pipeSource{
			estimate: len(items),
			open: func(context.Context) (*Stream[any], error) {
				return StreamOf(items...), nil
			},
		}
	default:
		return fmt.Errorf("unsupported source type %T", source)
	}
	return nil
}

// deriveMode resolves the execution plan. Parallelism only applies to
// processors; worker and chunk counts fall back to the source estimate when
// not fixed by the caller.
func (p *Pipe) deriveMode() {
	mode := execMode{
		workload: p.settings.workload,
		ordered:  p.settings.ordered,
	}
	if p.settings.parallel && p.stage.Kind() == KindProcessor {
		mode.parallel = true
	}
	mode.workers = p.settings.workers
	if mode.workers == 0 {
		mode.workers = WorkerCount(p.source.estimate, mode.workload)
	}
	mode.chunkSize = p.settings.chunkSize
	if mode.chunkSize == 0 {
		mode.chunkSize = ChunkSize(p.source.estimate, mode.workers)
	}
	p.mode = mode
}

// Output returns the pipe's result stream. Nothing runs until the first
// Next call; each call to Output starts an independent evaluation.
func (p *Pipe) Output(ctx context.Context) *Stream[any] {
	return DeferStream(func() (*Stream[any], error) {
		return p.execute(ctx)
	})
}

// List evaluates the pipe and collects every result. On an element error the
// partial results are dropped and the error is returned.
func (p *Pipe) List(ctx context.Context) ([]any, error) {
	return p.Output(ctx).Collect()
}

func (p *Pipe) execute(ctx context.Context) (*Stream[any], error) {
	start := time.Now()
	p.metrics.PipeStarted(ctx, p.name, p.stageName)
	p.logger.Printf("pipe %s: stage %q starting (%s)", p.runID, p.stageName, p.mode)

	out, err := p.run(ctx)
	if err != nil {
		p.metrics.PipeCompleted(ctx, p.name, p.stageName, time.Since(start), 0, err)
		p.logger.Printf("pipe %s: stage %q failed: %v", p.runID, p.stageName, err)
		return nil, err
	}
	return p.completing(ctx, start, out), nil
}

func (p *Pipe) run(ctx context.Context) (*Stream[any], error) {
	upstream, err := p.source.open(ctx)
	if err != nil {
		return nil, err
	}
	if p.stage.Kind() == KindOperator {
		return p.runOperator(ctx, upstream)
	}
	if p.mode.parallel {
		return p.runParallel(ctx, upstream), nil
	}
	return p.runSequential(ctx, upstream), nil
}

// completing wraps the result stream so that completion metrics and the
// summary log line fire exactly once, when the consumer hits the end of the
// stream or an element error.
func (p *Pipe) completing(ctx context.Context, start time.Time, in *Stream[any]) *Stream[any] {
	items := 0
	return NewStream(func() (any, error) {
		v, err := in.Next()
		if err != nil {
			cause := err
			if errors.Is(err, ErrEndOfStream) {
				cause = nil
			}
			p.metrics.PipeCompleted(ctx, p.name, p.stageName, time.Since(start), items, cause)
			if cause != nil {
				p.logger.Printf("pipe %s: stage %q failed after %d items: %v", p.runID, p.stageName, items, cause)
			} else {
				p.logger.Printf("pipe %s: stage %q emitted %d items in %s", p.runID, p.stageName, items, time.Since(start))
			}
			return nil, err
		}
		items++
		return v, nil
	})
}

func (p *Pipe) runOperator(ctx context.Context, upstream *Stream[any]) (*Stream[any], error) {
	op := p.stage.(Operator)
	out, err := op.Operate(ctx, upstream, p.conf)
	if err != nil {
		return nil, NewStageError(p.stageName, -1, err)
	}
	if out == nil {
		out = EmptyStream[any]()
	}
	return out, nil
}

func (p *Pipe) runSequential(ctx context.Context, upstream *Stream[any]) *Stream[any] {
	proc := p.stage.(Processor)
	index := 0
	mapped := MapStream(upstream, func(item any) ([]any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := proc.Process(ctx, item, p.conf)
		if err != nil {
			return nil, NewStageError(p.stageName, index, err)
		}
		index++
		return out, nil
	})
	return Multiplex(mapped)
}

func (p *Pipe) runParallel(ctx context.Context, upstream *Stream[any]) *Stream[any] {
	owned := p.scope == nil
	var pool *Pool
	if owned {
		pool = NewPool(p.mode.workers)
	} else {
		pool = p.scope.Acquire(p.mode.workers)
	}
	p.metrics.PoolSized(ctx, p.name, p.mode.workers, p.mode.chunkSize)

	proc := p.stage.(Processor)
	fn := func(ctx context.Context, item any) ([]any, error) {
		out, err := proc.Process(ctx, item, p.conf)
		if err != nil {
			return nil, NewStageError(p.stageName, -1, err)
		}
		return out, nil
	}
	results := Multiplex(Submit(ctx, pool, upstream, fn, p.mode.chunkSize, p.mode.ordered))
	if !owned {
		return results
	}

	// An owned pool lives for one evaluation. The first terminal result
	// means no more tasks can arrive, so the pool is shut down there.
	released := false
	return NewStream(func() (any, error) {
		v, err := results.Next()
		if err != nil && !released {
			released = true
			pool.Close()
			pool.Join()
		}
		return v, err
	})
}

// Then binds the named stage into a new pipe fed by this one's results.
// The child inherits workload, ordering, parallelism with the resolved
// worker count, the scope if any, and the parent's name and run identity;
// chunk size is derived fresh. Extra options are applied after the
// inherited ones and may override them.
func (p *Pipe) Then(stage string, conf Conf, opts ...PipeOption) (*Pipe, error) {
	inherited := []PipeOption{
		WithSource(p),
		WithConf(conf),
		WithWorkload(p.settings.workload),
		WithOrdered(p.settings.ordered),
		withLineage(p),
	}
	if p.settings.parallel {
		inherited = append(inherited, WithParallel(), WithWorkers(p.mode.workers))
	}
	if p.scope != nil {
		inherited = append(inherited, WithScope(p.scope))
	}
	inherited = append(inherited, opts...)
	return NewPipe(p.registry, stage, inherited...)
}

// Rebind returns a copy of the pipe with a different stage configuration.
// Source, mode and identity are shared with the original.
func (p *Pipe) Rebind(conf Conf) *Pipe {
	clone := *p
	if conf == nil {
		conf = Conf{}
	}
	clone.conf = conf
	clone.settings.conf = conf
	return &clone
}

// Stage returns the resolved stage this pipe evaluates.
func (p *Pipe) Stage() Stage { return p.stage }

// Name returns the pipeline name used in metrics and logs.
func (p *Pipe) Name() string { return p.name }

// RunID returns the identity shared by every pipe in a chain.
func (p *Pipe) RunID() string { return p.runID }

// Parallel reports whether evaluation fans items out to a worker pool.
func (p *Pipe) Parallel() bool { return p.mode.parallel }

// Workers returns the resolved worker count.
func (p *Pipe) Workers() int { return p.mode.workers }

// ChunkSize returns the resolved number of items handed to a worker at a
// time.
func (p *Pipe) ChunkSize() int { return p.mode.chunkSize }

// Ordered reports whether parallel results keep source order.
func (p *Pipe) Ordered() bool { return p.mode.ordered }
