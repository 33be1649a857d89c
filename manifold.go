package manifold

import (
	"context"
)

// Kind classifies a stage by how it consumes its input.
type Kind string

const (
	// KindProcessor marks a per-item stage. Processors transform one item at
	// a time and are safe to dispatch across a worker pool.
	KindProcessor Kind = "processor"
	// KindOperator marks a whole-stream stage. Operators need the entire
	// input at once (sort, aggregate, fetch) and always run sequentially,
	// even when parallel execution was requested.
	KindOperator Kind = "operator"
)

// Stage is the common surface of every pipeline stage held by a Registry.
// Concrete stages implement Processor or Operator according to their Kind.
type Stage interface {
	Name() string
	Kind() Kind
}

// Processor is a per-item stage. Process receives a single item together
// with the stage configuration and returns zero or more result items: an
// empty result drops the item from the output, more than one result fans it
// out. Implementations must be safe for concurrent use, since parallel
// execution invokes Process from multiple pool workers at once.
type Processor interface {
	Stage
	Process(ctx context.Context, item any, conf Conf) ([]any, error)
}

// Operator is a whole-stream stage. Operate receives the entire upstream
// sequence and returns the transformed sequence. The source is nil when the
// stage heads a pipeline and produces its own input, as fetch-type stages do.
type Operator interface {
	Stage
	Operate(ctx context.Context, source *Stream[any], conf Conf) (*Stream[any], error)
}

// ProcessorFunc is the function form of a Processor body.
type ProcessorFunc func(ctx context.Context, item any, conf Conf) ([]any, error)

// OperatorFunc is the function form of an Operator body.
type OperatorFunc func(ctx context.Context, source *Stream[any], conf Conf) (*Stream[any], error)

type funcProcessor struct {
	name string
	fn   ProcessorFunc
}

func (p *funcProcessor) Name() string { return p.name }

func (p *funcProcessor) Kind() Kind { return KindProcessor }

func (p *funcProcessor) Process(ctx context.Context, item any, conf Conf) ([]any, error) {
	return p.fn(ctx, item, conf)
}

// NewProcessor wraps fn as a named Processor stage.
func NewProcessor(name string, fn ProcessorFunc) Processor {
	if fn == nil {
		panic("manifold.NewProcessor: fn cannot be nil")
	}
	return &funcProcessor{name: name, fn: fn}
}

type funcOperator struct {
	name string
	fn   OperatorFunc
}

func (o *funcOperator) Name() string { return o.name }

func (o *funcOperator) Kind() Kind { return KindOperator }

func (o *funcOperator) Operate(ctx context.Context, source *Stream[any], conf Conf) (*Stream[any], error) {
	return o.fn(ctx, source, conf)
}

// NewOperator wraps fn as a named Operator stage.
func NewOperator(name string, fn OperatorFunc) Operator {
	if fn == nil {
		panic("manifold.NewOperator: fn cannot be nil")
	}
	return &funcOperator{name: name, fn: fn}
}
