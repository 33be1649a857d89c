package stages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pipelab/go-manifold"
)

// HTTPStatusError reports a non-200 response from a fetch-type stage.
type HTTPStatusError struct {
	// URL is the request URL
	URL string
	// StatusCode is the response status
	StatusCode int
}

// Error implements the error interface for HTTPStatusError.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetch retrieves a JSON document over HTTP and streams its elements as
// items. A top-level array contributes one item per element; any other
// document contributes a single item. Fetch produces its own input, so any
// upstream items are ignored.
//
// Conf keys:
//   - url: the address to GET (required)
//   - path: optional gjson path selecting the part of the document to emit
//   - delay: pause before the request, honored when a collection paces its
//     sources
//
// Transient failures (network errors and 5xx responses) are retried through
// the stage's retrier.
type Fetch struct {
	client  *http.Client
	retrier *manifold.Retrier
}

var _ manifold.Operator = (*Fetch)(nil)

// FetchOption is a function that configures a Fetch stage.
type FetchOption func(*Fetch)

// WithFetchClient sets the HTTP client used for requests.
func WithFetchClient(client *http.Client) FetchOption {
	return func(f *Fetch) {
		if client != nil {
			f.client = client
		}
	}
}

// WithFetchRetrier sets the retry policy for transient failures.
func WithFetchRetrier(retrier *manifold.Retrier) FetchOption {
	return func(f *Fetch) {
		if retrier != nil {
			f.retrier = retrier
		}
	}
}

// NewFetch creates the fetch stage with the given options.
func NewFetch(opts ...FetchOption) *Fetch {
	f := &Fetch{
		client:  &http.Client{Timeout: 30 * time.Second},
		retrier: defaultFetchRetrier(),
	}

	// Apply options
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Stage interface for Fetch.
func (*Fetch) Name() string { return "fetch" }

// Kind implements Stage interface for Fetch.
func (*Fetch) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for Fetch.
func (f *Fetch) Operate(ctx context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
	address := conf.GetString("url", "")
	if address == "" {
		return nil, errors.New("fetch requires a 'url' setting")
	}
	if err := waitDelay(ctx, conf); err != nil {
		return nil, err
	}

	body, err := fetchBody(ctx, f.client, f.retrier, address)
	if err != nil {
		return nil, err
	}
	items, err := itemsFromJSON(body, conf.GetString("path", ""))
	if err != nil {
		return nil, fmt.Errorf("parsing response from %s: %w", address, err)
	}
	return manifold.StreamOf(items...), nil
}

func defaultFetchRetrier() *manifold.Retrier {
	return manifold.NewRetrier(3).
		WithShouldRetry(transientFetchError).
		WithFixedBackoff(500 * time.Millisecond)
}

// transientFetchError reports whether a fetch failure is worth another
// attempt: server-side statuses are, client-side statuses are not, and
// anything below HTTP (DNS, connection resets) is.
func transientFetchError(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// fetchBody GETs the address under the retry policy and returns the response
// body.
func fetchBody(ctx context.Context, client *http.Client, retrier *manifold.Retrier, address string) ([]byte, error) {
	var body []byte
	err := retrier.Do(ctx, func(ctx context.Context) error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
		if reqErr != nil {
			return reqErr
		}
		resp, doErr := client.Do(req)
		if doErr != nil {
			return doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &HTTPStatusError{URL: address, StatusCode: resp.StatusCode}
		}
		var readErr error
		body, readErr = io.ReadAll(resp.Body)
		return readErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", address, err)
	}
	return body, nil
}

// itemsFromJSON parses a JSON document into items, descending into path
// first when one is given.
func itemsFromJSON(body []byte, path string) ([]any, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("response body is not valid JSON")
	}
	result := gjson.ParseBytes(body)
	if path != "" {
		result = result.Get(path)
		if !result.Exists() {
			return nil, fmt.Errorf("path %q not found in document", path)
		}
	}
	if result.IsArray() {
		elems := result.Array()
		items := make([]any, 0, len(elems))
		for _, elem := range elems {
			items = append(items, elem.Value())
		}
		return items, nil
	}
	return []any{result.Value()}, nil
}
