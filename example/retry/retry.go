package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// flakyServer answers 503 for the first failures requests and JSON after.
func flakyServer(failures int32) (*httptest.Server, *atomic.Int32) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := requests.Add(1)
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"title":"finally made it"}]`)
	}))
	return server, &requests
}

// runRetrierDemo drives the retrier directly with a visible backoff schedule.
func runRetrierDemo() {
	fmt.Println("\n🔁 Retrier with exponential backoff")
	fmt.Println("===================================")

	attempts := 0
	retrier := manifold.NewRetrier(4).WithBackoff(func(attempt int) time.Duration {
		// 50ms, 100ms, 200ms
		return 50 * time.Millisecond << attempt
	})

	start := time.Now()
	err := retrier.Do(context.Background(), func(_ context.Context) error {
		attempts++
		fmt.Printf("   Attempt %d at %6.1fms: ", attempts, float64(time.Since(start).Microseconds())/1000)
		if attempts < 3 {
			fmt.Println("❌ simulated outage")
			return errors.New("simulated outage")
		}
		fmt.Println("✅ success")
		return nil
	})
	if err != nil {
		fmt.Printf("❌ Unexpected failure: %v\n", err)
		return
	}
	fmt.Printf("✅ Recovered on attempt %d\n", attempts)
}

// runFetchRetryDemo lets the fetch stage ride out transient 503 responses.
func runFetchRetryDemo() {
	fmt.Println("\n🔁 Fetch stage riding out 503 responses")
	fmt.Println("=======================================")

	server, requests := flakyServer(2)
	defer server.Close()

	fetch := stages.NewFetch(stages.WithFetchRetrier(
		manifold.NewRetrier(3).WithFixedBackoff(100 * time.Millisecond),
	))

	start := time.Now()
	out, err := fetch.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	if err != nil {
		fmt.Printf("❌ Fetch failed: %v\n", err)
		return
	}
	items, err := out.Collect()
	if err != nil {
		fmt.Printf("❌ Collect failed: %v\n", err)
		return
	}

	fmt.Printf("✅ Got %d item(s) after %d requests in %.2fms\n",
		len(items), requests.Load(), float64(time.Since(start).Microseconds())/1000)
	fmt.Printf("   %v\n", items[0])
}

// runExhaustionDemo shows the error shape when every attempt fails.
func runExhaustionDemo() {
	fmt.Println("\n🔁 Exhausting the attempt budget")
	fmt.Println("================================")

	server, requests := flakyServer(100)
	defer server.Close()

	fetch := stages.NewFetch(stages.WithFetchRetrier(manifold.NewRetrier(3)))

	_, err := fetch.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})
	if err == nil {
		fmt.Println("⚠️ Expected a failure and got none")
		return
	}

	fmt.Printf("❌ Gave up after %d requests: %v\n", requests.Load(), err)

	var exhausted *manifold.RetryExhaustedError
	if errors.As(err, &exhausted) {
		fmt.Printf("   RetryExhaustedError reports %d attempts\n", exhausted.MaxAttempts)
	}
	var statusErr *stages.HTTPStatusError
	if errors.As(err, &statusErr) {
		fmt.Printf("   The last response carried status %d\n", statusErr.StatusCode)
	}
}

// runClientErrorDemo shows the default policy declining a 404.
func runClientErrorDemo() {
	fmt.Println("\n🔁 Client errors are not retried")
	fmt.Println("================================")

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	// The default fetch policy retries 5xx and network errors only.
	fetch := stages.NewFetch()
	_, err := fetch.Operate(context.Background(), nil, manifold.Conf{"url": server.URL})

	fmt.Printf("❌ %v\n", err)
	fmt.Printf("✅ The server saw exactly %d request; a 404 will not get better\n", requests.Load())
}

func main() {
	fmt.Println("Manifold Retry Demonstration")
	fmt.Println("============================")
	fmt.Println("This example uses the retrier directly and through the fetch")
	fmt.Println("stage: transient failures recover, budgets exhaust, and")
	fmt.Println("permanent failures short-circuit.")

	runRetrierDemo()
	runFetchRetryDemo()
	runExhaustionDemo()
	runClientErrorDemo()

	fmt.Println("\nDemo Complete!")
}
