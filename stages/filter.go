package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pipelab/go-manifold"
)

// Filter passes or drops items against a list of rules. A dropped item
// yields an empty result, which the multiplexer removes from the output.
//
// Conf keys:
//   - rules: a list of {field, op, value} maps, or a single such map. The op
//     is one of eq, ne, contains, gt, lt, matches.
//   - combine: "and" (default) requires every rule to match, "or" any one
//   - mode: "permit" (default) keeps matching items, "block" drops them
//
// With no rules configured every item passes. The contains op is
// case-insensitive; matches applies a Go regular expression to the field's
// string form.
type Filter struct{}

var _ manifold.Processor = (*Filter)(nil)

// NewFilter creates the filter stage.
func NewFilter() *Filter {
	return &Filter{}
}

// Name implements Stage interface for Filter.
func (*Filter) Name() string { return "filter" }

// Kind implements Stage interface for Filter.
func (*Filter) Kind() manifold.Kind { return manifold.KindProcessor }

// Process implements Processor interface for Filter.
func (f *Filter) Process(_ context.Context, item any, conf manifold.Conf) ([]any, error) {
	rules, err := filterRules(conf)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return []any{item}, nil
	}

	matched, err := evalRules(item, rules, conf.GetString("combine", "and"))
	if err != nil {
		return nil, err
	}

	keep := matched
	if conf.GetString("mode", "permit") == "block" {
		keep = !matched
	}
	if !keep {
		return nil, nil
	}
	return []any{item}, nil
}

type filterRule struct {
	field string
	op    string
	value any
}

func filterRules(conf manifold.Conf) ([]filterRule, error) {
	raw, ok := conf["rules"]
	if !ok {
		return nil, nil
	}

	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case map[string]any:
		entries = []any{v}
	default:
		return nil, fmt.Errorf("filter rules must be a list of maps, got %T", raw)
	}

	rules := make([]filterRule, 0, len(entries))
	for i, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter rule #%d must be a map, got %T", i, entry)
		}
		rule := filterRule{
			field: manifold.Conf(m).GetString("field", ""),
			op:    manifold.Conf(m).GetString("op", "eq"),
			value: m["value"],
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func evalRules(item any, rules []filterRule, combine string) (bool, error) {
	for i, rule := range rules {
		matched, err := evalRule(item, rule)
		if err != nil {
			return false, fmt.Errorf("filter rule #%d: %w", i, err)
		}
		if combine == "or" {
			if matched {
				return true, nil
			}
		} else if !matched {
			return false, nil
		}
	}
	return combine != "or", nil
}

func evalRule(item any, rule filterRule) (bool, error) {
	got := fieldValue(item, rule.field)
	switch rule.op {
	case "eq":
		return compareValues(got, rule.value) == 0, nil
	case "ne":
		return compareValues(got, rule.value) != 0, nil
	case "contains":
		haystack := strings.ToLower(stringifyValue(got))
		needle := strings.ToLower(stringifyValue(rule.value))
		return strings.Contains(haystack, needle), nil
	case "gt":
		return compareValues(got, rule.value) > 0, nil
	case "lt":
		return compareValues(got, rule.value) < 0, nil
	case "matches":
		re, err := regexp.Compile(stringifyValue(rule.value))
		if err != nil {
			return false, fmt.Errorf("invalid pattern: %w", err)
		}
		return re.MatchString(stringifyValue(got)), nil
	default:
		return false, fmt.Errorf("unknown op %q", rule.op)
	}
}
