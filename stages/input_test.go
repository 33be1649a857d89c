package stages_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInputReadsOnce verifies that the line is read on the first item and
// reused for the rest of the stream.
func TestInputReadsOnce(t *testing.T) {
	var prompt bytes.Buffer
	stage := stages.NewInput(
		stages.WithInputReader(strings.NewReader("Ada\nLovelace\n")),
		stages.WithPromptWriter(&prompt),
	)
	conf := manifold.Conf{"prompt": "Name?", "field": "author"}

	first, err := stage.Process(context.Background(), map[string]any{"id": 1}, conf)
	require.NoError(t, err)
	second, err := stage.Process(context.Background(), map[string]any{"id": 2}, conf)
	require.NoError(t, err)

	assert.Equal(t, "Ada", first[0].(map[string]any)["author"])
	assert.Equal(t, "Ada", second[0].(map[string]any)["author"])

	// The prompt is written exactly once, with a trailing space.
	assert.Equal(t, "Name? ", prompt.String())
}

// TestInputDefaults verifies the fallback when the line is empty or absent.
func TestInputDefaults(t *testing.T) {
	conf := manifold.Conf{"default": "anonymous"}

	// A blank line falls back to the default.
	stage := stages.NewInput(stages.WithInputReader(strings.NewReader("\n")))
	out, err := stage.Process(context.Background(), nil, conf)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", out[0].(map[string]any)["content"])

	// So does EOF before any line.
	stage = stages.NewInput(stages.WithInputReader(strings.NewReader("")))
	out, err = stage.Process(context.Background(), nil, conf)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", out[0].(map[string]any)["content"])

	// Surrounding whitespace is trimmed before the empty check.
	stage = stages.NewInput(stages.WithInputReader(strings.NewReader("  spaced  \n")))
	out, err = stage.Process(context.Background(), nil, conf)
	require.NoError(t, err)
	assert.Equal(t, "spaced", out[0].(map[string]any)["content"])
}

// TestInputCasts verifies each typed conversion. Every case gets a fresh
// stage instance because the line is cached per instance.
func TestInputCasts(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind string
		want any
	}{
		{"int", "42", "int", 42},
		{"float", "2.5", "float", 2.5},
		{"bool", "true", "bool", true},
		{"url", "https://example.com/feed", "url", "https://example.com/feed"},
		{"date only", "2024-05-06", "date", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)},
		{"date and time", "2024-05-06 07:08:09", "date", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)},
		{"date rfc3339", "2024-05-06T07:08:09Z", "date", time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := stages.NewInput(stages.WithInputReader(strings.NewReader(tt.line + "\n")))
			out, err := stage.Process(context.Background(), nil, manifold.Conf{"type": tt.kind})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out[0].(map[string]any)["content"])
		})
	}
}

// TestInputCastErrors verifies rejection of values that fail their cast.
func TestInputCastErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind string
		want string
	}{
		{"bad int", "abc", "int", `input "abc" is not an integer`},
		{"bad float", "abc", "float", `input "abc" is not a number`},
		{"bad bool", "maybe", "bool", `input "maybe" is not a boolean`},
		{"relative url", "feeds/all", "url", `input "feeds/all" is not an absolute URL`},
		{"bad date", "last tuesday", "date", `input "last tuesday" is not a recognized date`},
		{"unknown type", "x", "uuid", `unknown input type "uuid"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := stages.NewInput(stages.WithInputReader(strings.NewReader(tt.line + "\n")))
			_, err := stage.Process(context.Background(), nil, manifold.Conf{"type": tt.kind})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestInputItemShapes verifies assignment on maps versus bare items.
func TestInputItemShapes(t *testing.T) {
	stage := stages.NewInput(stages.WithInputReader(strings.NewReader("hello\n")))
	item := map[string]any{"id": 7}

	out, err := stage.Process(context.Background(), item, manifold.Conf{})
	require.NoError(t, err)

	got := out[0].(map[string]any)
	assert.Equal(t, "hello", got["content"])
	assert.Equal(t, 7, got["id"])

	// The original map is untouched.
	_, mutated := item["content"]
	assert.False(t, mutated)

	// A bare item is replaced by a fresh single-field map.
	out, err = stage.Process(context.Background(), "ignored", manifold.Conf{"field": "greeting"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello"}, out[0])
}
