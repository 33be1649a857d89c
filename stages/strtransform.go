package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/pipelab/go-manifold"
)

// StrTransform applies a named string transform to one field of each item.
//
// Conf keys:
//   - transform: one of upper, lower, title, trim, capitalize, prefix, suffix
//     (required)
//   - field: the field to transform, "content" by default
//   - prefix / suffix: the text to attach for those transforms
//
// Bare string items are transformed directly. Map items get the field
// rewritten on a copy; a missing field is treated as the empty string, so a
// prefix or suffix transform can populate it.
type StrTransform struct{}

var _ manifold.Processor = (*StrTransform)(nil)

// NewStrTransform creates the strtransform stage.
func NewStrTransform() *StrTransform {
	return &StrTransform{}
}

// Name implements Stage interface for StrTransform.
func (*StrTransform) Name() string { return "strtransform" }

// Kind implements Stage interface for StrTransform.
func (*StrTransform) Kind() manifold.Kind { return manifold.KindProcessor }

// Process implements Processor interface for StrTransform.
func (t *StrTransform) Process(_ context.Context, item any, conf manifold.Conf) ([]any, error) {
	name := conf.GetString("transform", "")
	if name == "" {
		return nil, errors.New("strtransform requires a 'transform' setting")
	}
	apply, err := transformNamed(name, conf)
	if err != nil {
		return nil, err
	}

	field := conf.GetString("field", "content")
	switch v := item.(type) {
	case string:
		return []any{apply(v)}, nil
	case map[string]any:
		out := cloneItem(v)
		out[field] = apply(stringifyValue(v[field]))
		return []any{out}, nil
	default:
		return nil, fmt.Errorf("strtransform cannot handle %T items", item)
	}
}

func transformNamed(name string, conf manifold.Conf) (func(string) string, error) {
	switch name {
	case "upper":
		return strings.ToUpper, nil
	case "lower":
		return strings.ToLower, nil
	case "title":
		return titleCase, nil
	case "trim":
		return strings.TrimSpace, nil
	case "capitalize":
		return capitalize, nil
	case "prefix":
		prefix := conf.GetString("prefix", "")
		return func(s string) string { return prefix + s }, nil
	case "suffix":
		suffix := conf.GetString("suffix", "")
		return func(s string) string { return s + suffix }, nil
	default:
		return nil, fmt.Errorf("unknown transform %q", name)
	}
}

// titleCase uppercases the first letter of every word and lowercases the
// rest, leaving non-letter runs untouched.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
