package stages

import (
	"context"
	"fmt"

	"github.com/pipelab/go-manifold"
)

// Truncate passes through at most count items, after skipping an optional
// start offset. Conf keys: count (required), start. The output stays lazy;
// items beyond the window are never pulled.
type Truncate struct{}

var _ manifold.Operator = (*Truncate)(nil)

// NewTruncate creates the truncate stage.
func NewTruncate() *Truncate {
	return &Truncate{}
}

// Name implements Stage interface for Truncate.
func (*Truncate) Name() string { return "truncate" }

// Kind implements Stage interface for Truncate.
func (*Truncate) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for Truncate.
func (t *Truncate) Operate(_ context.Context, source *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
	count := conf.GetInt("count", -1)
	if count < 0 {
		return nil, fmt.Errorf("truncate requires a non-negative 'count' setting, got %d", count)
	}
	start := conf.GetInt("start", 0)
	if start < 0 {
		return nil, fmt.Errorf("truncate start cannot be negative, got %d", start)
	}
	if source == nil {
		return manifold.EmptyStream[any](), nil
	}

	skipped, taken := 0, 0
	return manifold.NewStream(func() (any, error) {
		for skipped < start {
			if _, err := source.Next(); err != nil {
				return nil, err
			}
			skipped++
		}
		if taken >= count {
			return nil, manifold.ErrEndOfStream
		}
		v, err := source.Next()
		if err != nil {
			return nil, err
		}
		taken++
		return v, nil
	}), nil
}
