package stages

import (
	"context"

	"github.com/pipelab/go-manifold"
)

// Unique drops items whose field value was already seen, keeping first
// occurrences. Conf keys: field ("content" by default; dedupes on whole
// items when set to the empty string). Values are keyed by their string
// form. The output stays lazy.
type Unique struct{}

var _ manifold.Operator = (*Unique)(nil)

// NewUnique creates the unique stage.
func NewUnique() *Unique {
	return &Unique{}
}

// Name implements Stage interface for Unique.
func (*Unique) Name() string { return "unique" }

// Kind implements Stage interface for Unique.
func (*Unique) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for Unique.
func (u *Unique) Operate(_ context.Context, source *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
	if source == nil {
		return manifold.EmptyStream[any](), nil
	}
	field := conf.GetString("field", "content")
	seen := make(map[string]bool)
	return manifold.NewStream(func() (any, error) {
		for {
			v, err := source.Next()
			if err != nil {
				return nil, err
			}
			key := stringifyValue(fieldValue(v, field))
			if seen[key] {
				continue
			}
			seen[key] = true
			return v, nil
		}
	}), nil
}
