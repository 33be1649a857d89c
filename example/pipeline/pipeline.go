package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// sampleHeadlines provides feed items for the demos.
func sampleHeadlines() []any {
	return []any{
		map[string]any{"title": "Go 1.24 adds faster maps", "source": "golang-blog", "score": 9},
		map[string]any{"title": "Petunia care in dry summers", "source": "garden-weekly", "score": 2},
		map[string]any{"title": "Profiling Go services in production", "source": "conf-talks", "score": 8},
		map[string]any{"title": "Sourdough starter troubleshooting", "source": "bread-digest", "score": 4},
		map[string]any{"title": "Go generics two years on", "source": "golang-blog", "score": 7},
	}
}

// buildRegistry installs the built-in stages plus a custom scoring
// processor used by the chain demo.
func buildRegistry() (*manifold.Registry, error) {
	registry := manifold.NewRegistry()
	if err := stages.RegisterAll(registry); err != nil {
		return nil, err
	}

	// A custom per-item processor registers exactly like a built-in.
	err := registry.Register(manifold.NewProcessor("label", func(_ context.Context, item any, conf manifold.Conf) ([]any, error) {
		m, ok := item.(map[string]any)
		if !ok {
			return []any{item}, nil
		}
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		out["label"] = fmt.Sprintf("%s%v", conf.GetString("prefix", "#"), m["score"])
		return []any{out}, nil
	}))
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// runChainDemo builds a pipe one stage at a time with Then and lists it.
func runChainDemo(registry *manifold.Registry) {
	fmt.Println("\n▶️ Chained pipe: filter -> label -> sort")
	fmt.Println("========================================")

	pipe, err := manifold.NewPipe(registry, "filter",
		manifold.WithName("headlines"),
		manifold.WithSource(sampleHeadlines()),
		manifold.WithConf(manifold.Conf{
			"rules": map[string]any{"field": "score", "op": "gt", "value": 5},
		}),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	pipe, err = pipe.Then("label", manifold.Conf{"prefix": "score-"})
	if err == nil {
		pipe, err = pipe.Then("sort", manifold.Conf{"field": "score", "reverse": true})
	}
	if err != nil {
		fmt.Printf("❌ Chaining failed: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	items, err := pipe.List(ctx)
	if err != nil {
		fmt.Printf("❌ Pipe failed: %v\n", err)
		return
	}

	fmt.Printf("✅ Run %s produced %d items in %.2fms\n",
		pipe.RunID(), len(items), float64(time.Since(start).Microseconds())/1000)
	for i, item := range items {
		m := item.(map[string]any)
		fmt.Printf("   %d. [%v] %v (%v)\n", i+1, m["label"], m["title"], m["source"])
	}
}

// runTokenDemo fans headlines out into word counts.
func runTokenDemo(registry *manifold.Registry) {
	fmt.Println("\n▶️ Fan-out pipe: tokenizer -> unique -> count")
	fmt.Println("============================================")

	pipe, err := manifold.NewPipe(registry, "tokenizer",
		manifold.WithName("words"),
		manifold.WithSource(sampleHeadlines()),
		manifold.WithConf(manifold.Conf{"field": "title", "lower": true}),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	pipe, err = pipe.Then("unique", nil)
	if err == nil {
		pipe, err = pipe.Then("count", nil)
	}
	if err != nil {
		fmt.Printf("❌ Chaining failed: %v\n", err)
		return
	}

	items, err := pipe.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Pipe failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Distinct words across all titles: %v\n", items[0].(map[string]any)["count"])
}

// runRebindDemo reuses one pipe shape against two configurations.
func runRebindDemo(registry *manifold.Registry) {
	fmt.Println("\n▶️ Rebind: one pipe, two rule sets")
	fmt.Println("==================================")

	pipe, err := manifold.NewPipe(registry, "filter",
		manifold.WithSource(sampleHeadlines()),
		manifold.WithConf(manifold.Conf{
			"rules": map[string]any{"field": "source", "op": "eq", "value": "golang-blog"},
		}),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	goItems, err := pipe.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Pipe failed: %v\n", err)
		return
	}

	rebound := pipe.Rebind(manifold.Conf{
		"rules": map[string]any{"field": "title", "op": "contains", "value": "go"},
		"mode":  "block",
	})
	otherItems, err := rebound.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Rebound pipe failed: %v\n", err)
		return
	}

	fmt.Printf("✅ golang-blog headlines: %d\n", len(goItems))
	fmt.Printf("✅ headlines without \"go\": %d\n", len(otherItems))
	fmt.Printf("   Both runs share run ID %s\n", pipe.RunID())
}

func main() {
	fmt.Println("Manifold Pipe Composition Demonstration")
	fmt.Println(strings.Repeat("=", 39))
	fmt.Println("This example builds pipes from registered stages, chains them")
	fmt.Println("with Then, and rebinds an existing chain to a new configuration.")

	registry, err := buildRegistry()
	if err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	runChainDemo(registry)
	runTokenDemo(registry)
	runRebindDemo(registry)

	fmt.Println("\nDemo Complete!")
}
