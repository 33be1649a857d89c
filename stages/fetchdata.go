package stages

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pipelab/go-manifold"
)

// FetchData retrieves a JSON document over HTTP and extracts items from a
// mandatory path inside it. It is the stage to reach for when the interesting
// part of a response sits below the top level; for whole-document fetching
// use Fetch.
//
// Conf keys:
//   - url: the address to GET (required)
//   - path: gjson path to the items (required)
//   - delay: pause before the request, honored when a collection paces its
//     sources
type FetchData struct {
	client  *http.Client
	retrier *manifold.Retrier
}

var _ manifold.Operator = (*FetchData)(nil)

// FetchDataOption is a function that configures a FetchData stage.
type FetchDataOption func(*FetchData)

// WithFetchDataClient sets the HTTP client used for requests.
func WithFetchDataClient(client *http.Client) FetchDataOption {
	return func(f *FetchData) {
		if client != nil {
			f.client = client
		}
	}
}

// WithFetchDataRetrier sets the retry policy for transient failures.
func WithFetchDataRetrier(retrier *manifold.Retrier) FetchDataOption {
	return func(f *FetchData) {
		if retrier != nil {
			f.retrier = retrier
		}
	}
}

// NewFetchData creates the fetchdata stage with the given options.
func NewFetchData(opts ...FetchDataOption) *FetchData {
	f := &FetchData{
		client:  &http.Client{Timeout: 30 * time.Second},
		retrier: defaultFetchRetrier(),
	}

	// Apply options
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Stage interface for FetchData.
func (*FetchData) Name() string { return "fetchdata" }

// Kind implements Stage interface for FetchData.
func (*FetchData) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for FetchData.
func (f *FetchData) Operate(ctx context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
	address := conf.GetString("url", "")
	if address == "" {
		return nil, errors.New("fetchdata requires a 'url' setting")
	}
	path := conf.GetString("path", "")
	if path == "" {
		return nil, errors.New("fetchdata requires a 'path' setting")
	}
	if err := waitDelay(ctx, conf); err != nil {
		return nil, err
	}

	body, err := fetchBody(ctx, f.client, f.retrier, address)
	if err != nil {
		return nil, err
	}
	items, err := itemsFromJSON(body, path)
	if err != nil {
		return nil, fmt.Errorf("parsing response from %s: %w", address, err)
	}
	return manifold.StreamOf(items...), nil
}
