// Package stages provides the built-in stage library: per-item processors
// that are safe for parallel dispatch, and whole-stream operators that need
// their entire input at once. RegisterAll installs every built-in into a
// registry, which makes "fetch" available as the default collection source
// type.
//
// Stages read their settings from the Conf passed to each invocation, so a
// single registered instance serves every pipe that names it. The stateful
// stages (input, throttle, fetchsqlite) bind to the first configuration they
// see and keep that binding for the instance's lifetime.
package stages

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pipelab/go-manifold"
)

// RegisterAll registers every built-in stage into the registry. It fails on
// the first name collision, so call it before any custom registrations that
// might reuse a built-in name.
func RegisterAll(registry *manifold.Registry) error {
	builtins := []manifold.Stage{
		NewStrTransform(),
		NewTokenizer(),
		NewFilter(),
		NewInput(),
		NewThrottle(),
		NewFetch(),
		NewFetchData(),
		NewFetchSQLite(),
		NewSort(),
		NewCount(),
		NewTruncate(),
		NewReverse(),
		NewUnique(),
	}
	for _, stage := range builtins {
		if err := registry.Register(stage); err != nil {
			return err
		}
	}
	return nil
}

// waitDelay blocks for the "delay" duration in conf, if any. Collections
// inject this key into source configurations to pace their fan-out.
func waitDelay(ctx context.Context, conf manifold.Conf) error {
	delay := conf.GetDuration("delay", 0)
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// fieldValue extracts the named field from a map-shaped item. Bare items and
// an empty field name yield the item itself.
func fieldValue(item any, field string) any {
	if field == "" {
		return item
	}
	if m, ok := item.(map[string]any); ok {
		return m[field]
	}
	return item
}

// cloneItem shallow-copies a map item so stages never mutate shared input.
func cloneItem(item map[string]any) map[string]any {
	out := make(map[string]any, len(item)+1)
	for k, v := range item {
		out[k] = v
	}
	return out
}

func stringifyValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// toFloat widens numeric values, including numeric strings, to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// compareValues orders two values: numerically when both sides widen to a
// float, lexically on their string forms otherwise.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(stringifyValue(a), stringifyValue(b))
}
