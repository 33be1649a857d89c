package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// buildRegistry installs the built-ins plus an emit source that pretends to
// be a remote feed.
func buildRegistry() (*manifold.Registry, error) {
	registry := manifold.NewRegistry()
	if err := stages.RegisterAll(registry); err != nil {
		return nil, err
	}

	err := registry.Register(manifold.NewOperator("emit", func(_ context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
		tag := conf.GetString("tag", "feed")
		return manifold.StreamOf[any](
			map[string]any{"feed": tag, "title": tag + " item 1"},
			map[string]any{"feed": tag, "title": tag + " item 2"},
		), nil
	}))
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// runThrottleDemo paces items through the throttle stage and reports the
// effective rate.
func runThrottleDemo(registry *manifold.Registry) {
	fmt.Println("\n🚀 Throttled pipe: 5 items per second, burst of 2")
	fmt.Println("=================================================")

	items := make([]any, 10)
	for i := range items {
		items[i] = i
	}

	pipe, err := manifold.NewPipe(registry, "throttle",
		manifold.WithName("paced"),
		manifold.WithSource(items),
		manifold.WithConf(manifold.Conf{"rate": 5, "burst": 2}),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	stream := pipe.Output(ctx)
	received := 0
	for {
		_, err := stream.Next()
		if err != nil {
			break
		}
		received++
		fmt.Printf("✅ Item %2d passed after %7.1fms\n",
			received, float64(time.Since(start).Microseconds())/1000)
	}

	elapsed := time.Since(start)
	fmt.Printf("\n📋 Throttle results: %d items in %.2fs (%.2f items/s)\n",
		received, elapsed.Seconds(), float64(received)/elapsed.Seconds())
}

// runCollectionDemo rate-limits the fan-out across collection sources.
func runCollectionDemo(registry *manifold.Registry) {
	fmt.Println("\n🚀 Rate-limited collection: 2 sources per second")
	fmt.Println("================================================")

	sources := []manifold.Source{
		{"type": "emit", "tag": "news"},
		{"type": "emit", "tag": "sport"},
		{"type": "emit", "tag": "weather"},
		{"type": "emit", "tag": "culture"},
	}

	coll, err := manifold.NewCollection(registry, sources,
		manifold.WithCollectionName("feeds"),
		manifold.WithRateLimit(rate.Limit(2), 1),
	)
	if err != nil {
		fmt.Printf("❌ Building collection failed: %v\n", err)
		return
	}

	start := time.Now()
	items, err := coll.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Collection failed: %v\n", err)
		return
	}

	elapsed := time.Since(start)
	fmt.Printf("✅ %d sources produced %d items in %.2fs\n", len(sources), len(items), elapsed.Seconds())
	fmt.Println("   Each source waited for a token before starting, so the")
	fmt.Println("   collection cannot hit all feeds at once.")
}

func main() {
	fmt.Println("Manifold Rate Limiting Demonstration")
	fmt.Println("====================================")
	fmt.Println("This example paces item flow with the throttle stage and")
	fmt.Println("slows a collection's fan-out with a shared rate limit.")

	registry, err := buildRegistry()
	if err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	runThrottleDemo(registry)
	runCollectionDemo(registry)

	fmt.Println("\nDemo Complete!")
}
