package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// initTracing builds a tracer provider from the same configuration block a
// YAML pipeline would carry. Point OTLP_ENDPOINT at a collector (for
// example localhost:4317) to see the spans; without one the exporter simply
// fails to deliver in the background.
func initTracing() (manifold.TracerProvider, error) {
	fmt.Println("🔧 Initializing tracing...")

	endpoint := os.Getenv("OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	fmt.Printf("   OTLP endpoint: %s\n", endpoint)

	provider, err := manifold.NewObservabilityFactory().CreateTracerProvider(manifold.TracingConfig{
		Enabled:  true,
		Type:     manifold.TracingTypeOTLP,
		Endpoint: endpoint,
		Insecure: true,
	}, "manifold-tracing-example")
	if err != nil {
		return nil, err
	}
	fmt.Println("✅ Tracer provider ready")
	return provider, nil
}

// runTracedPipe wraps a chain in a span with custom attributes.
func runTracedPipe(registry *manifold.Registry, provider manifold.TracerProvider) {
	fmt.Println("\n▶️ Traced pipe")
	fmt.Println("==============")

	pipe, err := manifold.NewPipe(registry, "tokenizer",
		manifold.WithName("traced-tokens"),
		manifold.WithSource([]any{"every span tells a story"}),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}
	pipe, err = pipe.Then("strtransform", manifold.Conf{"transform": "upper"})
	if err != nil {
		fmt.Printf("❌ Chaining failed: %v\n", err)
		return
	}

	traced := manifold.NewTracedPipe(pipe,
		manifold.WithPipeTracer(provider.Tracer("tracing-example")),
		manifold.WithPipeSpanName("tokenize-and-upper"),
		manifold.WithPipeSpanAttributes(attribute.String("demo.part", "pipe")),
	)

	items, err := traced.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Traced run failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Span \"tokenize-and-upper\" recorded %d items for run %s\n", len(items), pipe.RunID())
}

// runTracedFailure records an error status on the span.
func runTracedFailure(registry *manifold.Registry, provider manifold.TracerProvider) {
	fmt.Println("\n▶️ Traced failure")
	fmt.Println("=================")

	pipe, err := manifold.NewPipe(registry, "truncate",
		manifold.WithName("traced-failure"),
		manifold.WithSource([]any{1, 2, 3}),
		// Truncate without a count is a configuration error at run time.
		manifold.WithConf(manifold.Conf{}),
	)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	traced := manifold.NewTracedPipe(pipe,
		manifold.WithPipeTracer(provider.Tracer("tracing-example")),
		manifold.WithPipeSpanName("doomed-run"),
	)

	_, err = traced.List(context.Background())
	if err == nil {
		fmt.Println("⚠️ Expected a failure and got none")
		return
	}
	fmt.Printf("✅ Span \"doomed-run\" carries error status: %v\n", err)
}

// runTracedCollection spans a whole fan-out.
func runTracedCollection(registry *manifold.Registry, provider manifold.TracerProvider) {
	fmt.Println("\n▶️ Traced collection")
	fmt.Println("====================")

	coll, err := manifold.NewCollection(registry,
		[]manifold.Source{{"type": "emit", "tag": "alpha"}, {"type": "emit", "tag": "beta"}},
		manifold.WithCollectionName("traced-feeds"),
		manifold.WithCollectionParallel(),
	)
	if err != nil {
		fmt.Printf("❌ Building collection failed: %v\n", err)
		return
	}

	traced := manifold.NewTracedCollection(coll, "aggregate-feeds",
		attribute.String("demo.part", "collection")).
		WithTracer(provider.Tracer("tracing-example"))

	items, err := traced.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Traced collection failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Collection span covers %d items across both sources\n", len(items))
}

func main() {
	fmt.Println("Manifold Tracing Demonstration")
	fmt.Println("==============================")
	fmt.Println("This example exports pipe and collection spans over OTLP:")
	fmt.Println("span names, run IDs, item counts, and error statuses all")
	fmt.Println("travel as span attributes.")

	provider, err := initTracing()
	if err != nil {
		fmt.Printf("❌ Tracing setup failed: %v\n", err)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			fmt.Printf("⚠️ Tracer shutdown: %v\n", err)
		}
	}()

	registry := manifold.NewRegistry()
	if err := stages.RegisterAll(registry); err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	err = registry.Register(manifold.NewOperator("emit", func(_ context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
		tag := conf.GetString("tag", "feed")
		return manifold.StreamOf[any](tag+" one", tag+" two"), nil
	}))
	if err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	runTracedPipe(registry, provider)
	runTracedFailure(registry, provider)
	runTracedCollection(registry, provider)

	fmt.Println("\nDemo Complete!")
}
