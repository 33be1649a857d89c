package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pipelab/go-manifold"
)

// buildRegistry installs a deliberately slow processor.
func buildRegistry() (*manifold.Registry, error) {
	registry := manifold.NewRegistry()
	err := registry.Register(manifold.NewProcessor("slow", func(ctx context.Context, item any, conf manifold.Conf) ([]any, error) {
		delay := conf.GetDuration("delay", 100*time.Millisecond)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		return []any{item}, nil
	}))
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// runDeadlineDemo lets a context deadline cut a sequential run short.
func runDeadlineDemo(registry *manifold.Registry) {
	fmt.Println("\n⏱️ Deadline: 20 items at 100ms each, 450ms budget")
	fmt.Println("=================================================")

	items := make([]any, 20)
	for i := range items {
		items[i] = i
	}

	pipe, err := manifold.NewPipe(registry, "slow",
		manifold.WithName("deadline-demo"),
		manifold.WithSource(items),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 450*time.Millisecond)
	defer cancel()

	start := time.Now()
	stream := pipe.Output(ctx)
	received := 0
	var runErr error
	for {
		_, err := stream.Next()
		if errors.Is(err, manifold.ErrEndOfStream) {
			break
		}
		if err != nil {
			runErr = err
			break
		}
		received++
		fmt.Printf("✅ Item %d after %7.1fms\n",
			received, float64(time.Since(start).Microseconds())/1000)
	}

	if runErr != nil {
		fmt.Printf("\n❌ Run stopped after %d items: %v\n", received, runErr)
		if errors.Is(runErr, context.DeadlineExceeded) {
			fmt.Println("   The deadline fired mid-stream; remaining items were never computed.")
		}
	} else {
		fmt.Printf("\n⚠️ All %d items made it, the machine is faster than expected\n", received)
	}
}

// runCancelDemo cancels a parallel run from the consumer side.
func runCancelDemo(registry *manifold.Registry) {
	fmt.Println("\n⏱️ Cancel: stop a parallel run after three results")
	fmt.Println("==================================================")

	items := make([]any, 100)
	for i := range items {
		items[i] = i
	}

	pipe, err := manifold.NewPipe(registry, "slow",
		manifold.WithName("cancel-demo"),
		manifold.WithSource(items),
		manifold.WithConf(manifold.Conf{"delay": 20 * time.Millisecond}),
		manifold.WithParallel(),
		manifold.WithWorkers(4),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := pipe.Output(ctx)
	for i := 0; i < 3; i++ {
		v, err := stream.Next()
		if err != nil {
			fmt.Printf("❌ Unexpected error: %v\n", err)
			return
		}
		fmt.Printf("✅ Result %d: %v\n", i+1, v)
	}

	cancel()
	fmt.Println("🛑 Canceled; draining the rest...")

	drained := 0
	for {
		if _, err := stream.Next(); err != nil {
			fmt.Printf("✅ Stream ended after %d more in-flight results (%v)\n", drained, err)
			break
		}
		drained++
	}
	fmt.Println("   Workers stop picking up new chunks once the context ends;")
	fmt.Println("   only already-dispatched results still come through.")
}

func main() {
	fmt.Println("Manifold Timeout and Cancellation Demonstration")
	fmt.Println("===============================================")
	fmt.Println("This example bounds pipe runs with context deadlines and")
	fmt.Println("cancels an in-flight parallel run from the consumer side.")

	registry, err := buildRegistry()
	if err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	runDeadlineDemo(registry)
	runCancelDemo(registry)

	fmt.Println("\nDemo Complete!")
}
