package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/pipelab/go-manifold"
)

// Tokenizer splits one field of each item into tokens and emits one
// {"content": token} item per token. Empty tokens are dropped, so an item
// whose field holds only delimiters contributes nothing.
//
// Conf keys:
//   - field: the field to split, "content" by default
//   - delimiter: the split separator, a single space by default
//   - lower: lowercase the text before splitting
//   - dedupe: keep only the first occurrence of each token
type Tokenizer struct{}

var _ manifold.Processor = (*Tokenizer)(nil)

// NewTokenizer creates the tokenizer stage.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{}
}

// Name implements Stage interface for Tokenizer.
func (*Tokenizer) Name() string { return "tokenizer" }

// Kind implements Stage interface for Tokenizer.
func (*Tokenizer) Kind() manifold.Kind { return manifold.KindProcessor }

// Process implements Processor interface for Tokenizer.
func (t *Tokenizer) Process(_ context.Context, item any, conf manifold.Conf) ([]any, error) {
	field := conf.GetString("field", "content")

	var text string
	switch v := item.(type) {
	case string:
		text = v
	case map[string]any:
		text = stringifyValue(v[field])
	default:
		return nil, fmt.Errorf("tokenizer cannot handle %T items", item)
	}

	if conf.GetBool("lower", false) {
		text = strings.ToLower(text)
	}

	delimiter := conf.GetString("delimiter", " ")
	dedupe := conf.GetBool("dedupe", false)

	parts := strings.Split(text, delimiter)
	out := make([]any, 0, len(parts))
	var seen map[string]bool
	if dedupe {
		seen = make(map[string]bool, len(parts))
	}
	for _, token := range parts {
		if token == "" {
			continue
		}
		if dedupe {
			if seen[token] {
				continue
			}
			seen[token] = true
		}
		out = append(out, map[string]any{"content": token})
	}
	return out, nil
}
