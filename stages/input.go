package stages

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pipelab/go-manifold"
)

// Input assigns a value read from an interactive source to a field of every
// item. The line is read exactly once per stage instance, on the first item
// processed, and reused afterwards; an empty line falls back to the conf
// default.
//
// Conf keys:
//   - prompt: text written to the prompt writer before reading
//   - default: value used when the line is empty
//   - type: cast applied to the value, one of text (default), int, float,
//     bool, url, date
//   - field: the field to assign, "content" by default
//
// Map items get the field assigned on a copy. Any other item, including nil
// from an empty pipe input, is replaced by a fresh {field: value} item.
type Input struct {
	helper manifold.StageHelper
	reader io.Reader
	prompt io.Writer
}

var _ manifold.Processor = (*Input)(nil)

// InputOption is a function that configures an Input stage.
type InputOption func(*Input)

// WithInputReader sets the source the stage reads its line from. Defaults to
// standard input.
func WithInputReader(r io.Reader) InputOption {
	return func(in *Input) {
		if r != nil {
			in.reader = r
		}
	}
}

// WithPromptWriter sets the destination for the prompt text. Defaults to
// standard output.
func WithPromptWriter(w io.Writer) InputOption {
	return func(in *Input) {
		if w != nil {
			in.prompt = w
		}
	}
}

// NewInput creates the input stage with the given options.
func NewInput(opts ...InputOption) *Input {
	in := &Input{
		reader: os.Stdin,
		prompt: os.Stdout,
	}

	// Apply options
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Name implements Stage interface for Input.
func (*Input) Name() string { return "input" }

// Kind implements Stage interface for Input.
func (*Input) Kind() manifold.Kind { return manifold.KindProcessor }

// Process implements Processor interface for Input.
func (in *Input) Process(_ context.Context, item any, conf manifold.Conf) ([]any, error) {
	err := in.helper.DoOnceWithError(func() error {
		if prompt := conf.GetString("prompt", ""); prompt != "" {
			fmt.Fprintf(in.prompt, "%s ", prompt)
		}
		scanner := bufio.NewScanner(in.reader)
		if scanner.Scan() {
			in.helper.SetState("line", strings.TrimSpace(scanner.Text()))
			return nil
		}
		if scanErr := scanner.Err(); scanErr != nil {
			return scanErr
		}
		// EOF before any line; the default takes over.
		in.helper.SetState("line", "")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	line := ""
	if v, ok := in.helper.GetState("line"); ok {
		line, _ = v.(string)
	}
	if line == "" {
		line = conf.GetString("default", "")
	}

	value, err := castInput(line, conf.GetString("type", "text"))
	if err != nil {
		return nil, err
	}

	field := conf.GetString("field", "content")
	if m, ok := item.(map[string]any); ok {
		out := cloneItem(m)
		out[field] = value
		return []any{out}, nil
	}
	return []any{map[string]any{field: value}}, nil
}

func castInput(line, kind string) (any, error) {
	switch kind {
	case "text", "":
		return line, nil
	case "int":
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("input %q is not an integer", line)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("input %q is not a number", line)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(line)
		if err != nil {
			return nil, fmt.Errorf("input %q is not a boolean", line)
		}
		return b, nil
	case "url":
		u, err := url.Parse(line)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("input %q is not an absolute URL", line)
		}
		return u.String(), nil
	case "date":
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, line); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("input %q is not a recognized date", line)
	default:
		return nil, fmt.Errorf("unknown input type %q", kind)
	}
}
