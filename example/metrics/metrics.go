package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// statsCollector tallies pipeline activity in memory and prints a report on
// demand. It is a complete MetricsCollector, so it sees pool sizing and
// collection fan-out as well as per-stage runs.
type statsCollector struct {
	mu          sync.Mutex
	pipeRuns    int
	pipeErrors  int
	itemsTotal  int
	workersSeen []int
	collections int
}

func (s *statsCollector) PipeStarted(_ context.Context, _, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeRuns++
}

func (s *statsCollector) PipeCompleted(_ context.Context, _, _ string, _ time.Duration, items int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemsTotal += items
	if err != nil {
		s.pipeErrors++
	}
}

func (s *statsCollector) PoolSized(_ context.Context, _ string, workers, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workersSeen = append(s.workersSeen, workers)
}

func (s *statsCollector) CollectionStarted(_ context.Context, _ string, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections++
}

func (s *statsCollector) CollectionCompleted(_ context.Context, _ string, _ time.Duration, _ int, _ error) {
}

func (s *statsCollector) report() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Println("\n📊 Collected statistics")
	fmt.Println("=======================")
	fmt.Printf("   Stage runs:      %d (%d failed)\n", s.pipeRuns, s.pipeErrors)
	fmt.Printf("   Items emitted:   %d\n", s.itemsTotal)
	fmt.Printf("   Collections run: %d\n", s.collections)
	fmt.Printf("   Pools sized:     %v workers\n", s.workersSeen)
}

var _ manifold.MetricsCollector = (*statsCollector)(nil)

// buildRegistry installs the built-ins plus an emit source.
func buildRegistry() (*manifold.Registry, error) {
	registry := manifold.NewRegistry()
	if err := stages.RegisterAll(registry); err != nil {
		return nil, err
	}
	err := registry.Register(manifold.NewOperator("emit", func(_ context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
		tag := conf.GetString("tag", "feed")
		return manifold.StreamOf[any](
			map[string]any{"content": tag + " one"},
			map[string]any{"content": tag + " two"},
		), nil
	}))
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// runWithStats drives a parallel pipe and a collection under the custom
// collector.
func runWithStats(registry *manifold.Registry, collector *statsCollector) {
	fmt.Println("\n▶️ Custom collector")
	fmt.Println("===================")

	items := make([]any, 40)
	for i := range items {
		items[i] = map[string]any{"content": fmt.Sprintf("item %d", i)}
	}

	pipe, err := manifold.NewPipe(registry, "strtransform",
		manifold.WithName("uppercase"),
		manifold.WithSource(items),
		manifold.WithConf(manifold.Conf{"transform": "upper"}),
		manifold.WithParallel(),
		manifold.WithWorkers(4),
		manifold.WithMetricsCollector(collector),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}
	if _, err := pipe.List(context.Background()); err != nil {
		fmt.Printf("❌ Pipe failed: %v\n", err)
		return
	}
	fmt.Println("✅ Parallel pipe finished")

	coll, err := manifold.NewCollection(registry,
		[]manifold.Source{{"type": "emit", "tag": "news"}, {"type": "emit", "tag": "sport"}},
		manifold.WithCollectionName("feeds"),
		manifold.WithCollectionMetricsCollector(collector),
	)
	if err != nil {
		fmt.Printf("❌ Building collection failed: %v\n", err)
		return
	}
	if _, err := coll.List(context.Background()); err != nil {
		fmt.Printf("❌ Collection failed: %v\n", err)
		return
	}
	fmt.Println("✅ Collection finished")
}

// runWithLogging shows the bundled log-backed collector.
func runWithLogging(registry *manifold.Registry) {
	fmt.Println("\n▶️ LoggingMetricsCollector")
	fmt.Println("==========================")
	fmt.Println("The same signals, written to a standard logger:")

	logger := log.New(os.Stdout, "   ", 0)
	collector := manifold.NewLoggingMetricsCollector(logger)

	pipe, err := manifold.NewPipe(registry, "tokenizer",
		manifold.WithName("tokens"),
		manifold.WithSource([]any{"metrics are just another stream"}),
		manifold.WithMetricsCollector(collector),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}
	if _, err := pipe.List(context.Background()); err != nil {
		fmt.Printf("❌ Pipe failed: %v\n", err)
	}
}

func main() {
	fmt.Println("Manifold Metrics Demonstration")
	fmt.Println("==============================")
	fmt.Println("This example plugs collectors into pipes and collections:")
	fmt.Println("first a custom in-memory tally, then the bundled logging")
	fmt.Println("collector.")

	registry, err := buildRegistry()
	if err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	collector := &statsCollector{}
	runWithStats(registry, collector)
	collector.report()

	runWithLogging(registry)

	fmt.Println("\nDemo Complete!")
}
