package stages

import (
	"context"
	"errors"

	"github.com/pipelab/go-manifold"
)

// Count drains the input and emits a single {"count": n} item.
type Count struct{}

var _ manifold.Operator = (*Count)(nil)

// NewCount creates the count stage.
func NewCount() *Count {
	return &Count{}
}

// Name implements Stage interface for Count.
func (*Count) Name() string { return "count" }

// Kind implements Stage interface for Count.
func (*Count) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for Count.
func (c *Count) Operate(_ context.Context, source *manifold.Stream[any], _ manifold.Conf) (*manifold.Stream[any], error) {
	n := 0
	if source != nil {
		for {
			_, err := source.Next()
			if errors.Is(err, manifold.ErrEndOfStream) {
				break
			}
			if err != nil {
				return nil, err
			}
			n++
		}
	}
	return manifold.StreamOf[any](map[string]any{"count": n}), nil
}
