package stages

import (
	"context"
	"sort"

	"github.com/pipelab/go-manifold"
)

// Sort orders the whole input by a field. Conf keys: field (compares whole
// items when empty), reverse. Numeric values order numerically, everything
// else lexically; the sort is stable.
type Sort struct{}

var _ manifold.Operator = (*Sort)(nil)

// NewSort creates the sort stage.
func NewSort() *Sort {
	return &Sort{}
}

// Name implements Stage interface for Sort.
func (*Sort) Name() string { return "sort" }

// Kind implements Stage interface for Sort.
func (*Sort) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for Sort.
func (s *Sort) Operate(_ context.Context, source *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
	if source == nil {
		return manifold.EmptyStream[any](), nil
	}
	items, err := source.Collect()
	if err != nil {
		return nil, err
	}

	field := conf.GetString("field", "")
	less := func(i, j int) bool {
		return compareValues(fieldValue(items[i], field), fieldValue(items[j], field)) < 0
	}
	if conf.GetBool("reverse", false) {
		less = func(i, j int) bool {
			return compareValues(fieldValue(items[j], field), fieldValue(items[i], field)) < 0
		}
	}
	sort.SliceStable(items, less)

	return manifold.StreamOf(items...), nil
}
