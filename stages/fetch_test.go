package stages_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

// TestFetchArray verifies that a top-level array streams one item per
// element, with numbers decoded as float64.
func TestFetchArray(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`[{"title":"a","rank":1},{"title":"b","rank":2}]`))
	defer server.Close()

	stage := stages.NewFetch()
	out, err := stage.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	require.NoError(t, err)

	items, err := out.Collect()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, map[string]any{"title": "a", "rank": float64(1)}, items[0])
	assert.Equal(t, map[string]any{"title": "b", "rank": float64(2)}, items[1])
}

// TestFetchObject verifies that a non-array document is a single item.
func TestFetchObject(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`{"title":"solo"}`))
	defer server.Close()

	stage := stages.NewFetch()
	out, err := stage.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	require.NoError(t, err)

	items, err := out.Collect()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, map[string]any{"title": "solo"}, items[0])
}

// TestFetchPath verifies descending into the document before extraction.
func TestFetchPath(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`{"feed":{"title":"news","items":[{"id":1},{"id":2}]}}`))
	defer server.Close()

	stage := stages.NewFetch()

	out, err := stage.Operate(context.Background(), nil, manifold.Conf{
		"url":  server.URL,
		"path": "feed.items",
	})
	require.NoError(t, err)
	items, err := out.Collect()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, map[string]any{"id": float64(1)}, items[0])

	// A path to a scalar yields that scalar as the only item.
	out, err = stage.Operate(context.Background(), nil, manifold.Conf{
		"url":  server.URL,
		"path": "feed.title",
	})
	require.NoError(t, err)
	items, err = out.Collect()
	require.NoError(t, err)
	assert.Equal(t, []any{"news"}, items)
}

// TestFetchPathMissing verifies the error for a path that matches nothing.
func TestFetchPathMissing(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`{"feed":{}}`))
	defer server.Close()

	stage := stages.NewFetch()
	_, err := stage.Operate(context.Background(), nil, manifold.Conf{
		"url":  server.URL,
		"path": "feed.entries",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing response from")
	assert.Contains(t, err.Error(), `path "feed.entries" not found in document`)
}

// TestFetchInvalidJSON verifies rejection of malformed bodies.
func TestFetchInvalidJSON(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`this is not json{`))
	defer server.Close()

	stage := stages.NewFetch()
	_, err := stage.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response body is not valid JSON")
}

// TestFetchMissingURL verifies the conf guard.
func TestFetchMissingURL(t *testing.T) {
	stage := stages.NewFetch()
	_, err := stage.Operate(context.Background(), nil, manifold.Conf{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch requires a 'url' setting")
}

// TestFetchRetriesServerErrors verifies that 5xx responses are retried
// until one succeeds.
func TestFetchRetriesServerErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[7]`))
	}))
	defer server.Close()

	stage := stages.NewFetch(stages.WithFetchRetrier(manifold.NewRetrier(3)))
	out, err := stage.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	require.NoError(t, err)

	items, err := out.Collect()
	require.NoError(t, err)
	assert.Equal(t, []any{float64(7)}, items)
	assert.Equal(t, 3, requests)
}

// TestFetchDeclinesClientErrors verifies that a 404 fails on the first
// attempt under the default retry policy.
func TestFetchDeclinesClientErrors(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	stage := stages.NewFetch()
	_, err := stage.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	require.Error(t, err)

	assert.Equal(t, 1, requests)
	assert.Contains(t, err.Error(), "retry giving up after 1 attempts")

	var statusErr *stages.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, server.URL, statusErr.URL)
}

// TestFetchExhaustsRetries verifies the exhaustion error after persistent
// server failures.
func TestFetchExhaustsRetries(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	retrier := manifold.NewRetrier(2).WithShouldRetry(func(err error) bool {
		var statusErr *stages.HTTPStatusError
		return errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError
	})
	stage := stages.NewFetch(stages.WithFetchRetrier(retrier))

	_, err := stage.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	require.Error(t, err)

	assert.Equal(t, 2, requests)
	var exhausted *manifold.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.MaxAttempts)
}

// TestFetchDelay verifies the pre-request pause a collection injects.
func TestFetchDelay(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`[1]`))
	defer server.Close()

	stage := stages.NewFetch()
	start := time.Now()
	out, err := stage.Operate(context.Background(), nil, manifold.Conf{
		"url":   server.URL,
		"delay": "50ms",
	})
	require.NoError(t, err)
	_, err = out.Collect()
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

// TestFetchDataRequiresPath verifies both mandatory settings.
func TestFetchDataRequiresPath(t *testing.T) {
	stage := stages.NewFetchData()

	_, err := stage.Operate(context.Background(), nil, manifold.Conf{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetchdata requires a 'url' setting")

	_, err = stage.Operate(context.Background(), nil, manifold.Conf{"url": "http://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetchdata requires a 'path' setting")
}

// TestFetchDataExtracts verifies extraction from a nested document.
func TestFetchDataExtracts(t *testing.T) {
	server := httptest.NewServer(jsonHandler(`{"value":{"items":[{"title":"x"},{"title":"y"}]}}`))
	defer server.Close()

	stage := stages.NewFetchData()
	out, err := stage.Operate(context.Background(), nil, manifold.Conf{
		"url":  server.URL,
		"path": "value.items",
	})
	require.NoError(t, err)

	items, err := out.Collect()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, map[string]any{"title": "x"}, items[0])
	assert.Equal(t, map[string]any{"title": "y"}, items[1])
}
