package stages

import (
	"context"

	"github.com/pipelab/go-manifold"
)

// Reverse emits the input in reverse order.
type Reverse struct{}

var _ manifold.Operator = (*Reverse)(nil)

// NewReverse creates the reverse stage.
func NewReverse() *Reverse {
	return &Reverse{}
}

// Name implements Stage interface for Reverse.
func (*Reverse) Name() string { return "reverse" }

// Kind implements Stage interface for Reverse.
func (*Reverse) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for Reverse.
func (r *Reverse) Operate(_ context.Context, source *manifold.Stream[any], _ manifold.Conf) (*manifold.Stream[any], error) {
	if source == nil {
		return manifold.EmptyStream[any](), nil
	}
	items, err := source.Collect()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return manifold.StreamOf(items...), nil
}
