package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/pipelab/go-manifold"
)

// buildRegistry installs a CPU-heavy digest stage.
func buildRegistry() (*manifold.Registry, error) {
	registry := manifold.NewRegistry()
	err := registry.Register(manifold.NewProcessor("digest", func(_ context.Context, item any, conf manifold.Conf) ([]any, error) {
		rounds := conf.GetInt("rounds", 2000)
		sum := sha256.Sum256([]byte(fmt.Sprint(item)))
		for i := 0; i < rounds; i++ {
			sum = sha256.Sum256(sum[:])
		}
		return []any{fmt.Sprintf("%x", sum[:8])}, nil
	}))
	if err != nil {
		return nil, err
	}
	return registry, nil
}

func sampleItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = fmt.Sprintf("record-%04d", i)
	}
	return items
}

// runOwnedPoolDemo compares a sequential run with a parallel one. Each
// parallel run builds, uses, and releases its own worker pool.
func runOwnedPoolDemo(registry *manifold.Registry) {
	fmt.Println("\n⚙️ Owned pool: sequential vs parallel")
	fmt.Println("=====================================")

	items := sampleItems(2000)

	sequential, err := manifold.NewPipe(registry, "digest",
		manifold.WithName("digests-sequential"),
		manifold.WithSource(items),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	start := time.Now()
	if _, err := sequential.List(context.Background()); err != nil {
		fmt.Printf("❌ Sequential run failed: %v\n", err)
		return
	}
	seqTime := time.Since(start)
	fmt.Printf("✅ Sequential: %d items in %.2fs\n", len(items), seqTime.Seconds())

	parallel, err := manifold.NewPipe(registry, "digest",
		manifold.WithName("digests-parallel"),
		manifold.WithSource(items),
		manifold.WithParallel(),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	start = time.Now()
	if _, err := parallel.List(context.Background()); err != nil {
		fmt.Printf("❌ Parallel run failed: %v\n", err)
		return
	}
	parTime := time.Since(start)

	fmt.Printf("✅ Parallel:   %d items in %.2fs with %d workers, chunks of %d\n",
		len(items), parTime.Seconds(), parallel.Workers(), parallel.ChunkSize())
	if parTime < seqTime {
		fmt.Printf("   Speedup: %.1fx\n", seqTime.Seconds()/parTime.Seconds())
	}
}

// runScopeDemo shares one pool across a chain of parallel pipes.
func runScopeDemo(registry *manifold.Registry) {
	fmt.Println("\n⚙️ Scoped pool: one pool, whole chain")
	fmt.Println("=====================================")

	scope := manifold.NewScope()
	defer scope.Close()

	pipe, err := manifold.NewPipe(registry, "digest",
		manifold.WithName("digests-scoped"),
		manifold.WithSource(sampleItems(1000)),
		manifold.WithParallel(),
		manifold.WithWorkers(4),
		manifold.WithScope(scope),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	// The second hop digests the digests, on the same workers.
	pipe, err = pipe.Then("digest", manifold.Conf{"rounds": 500})
	if err != nil {
		fmt.Printf("❌ Chaining failed: %v\n", err)
		return
	}

	start := time.Now()
	items, err := pipe.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Run failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Chain produced %d items in %.2fs\n", len(items), time.Since(start).Seconds())

	// Peeking at the shared pool shows both hops dispatched through it.
	pool := scope.Acquire(4)
	fmt.Printf("📊 Shared pool: %d workers, %d chunk tasks submitted, %d completed\n",
		pool.Workers(), pool.TasksSubmitted(), pool.TasksCompleted())
	fmt.Println("   Without a scope each hop would spin up and tear down its")
	fmt.Println("   own pool; with one, the chain reuses the same goroutines.")
}

func main() {
	fmt.Println("Manifold Worker Pool Demonstration")
	fmt.Println("==================================")
	fmt.Println("This example dispatches a CPU-bound stage across worker")
	fmt.Println("pools: per-run owned pools first, then a scope that shares")
	fmt.Println("one pool across a whole chain.")

	registry, err := buildRegistry()
	if err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	runOwnedPoolDemo(registry)
	runScopeDemo(registry)

	fmt.Println("\nDemo Complete!")
}
