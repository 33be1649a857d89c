package main

import (
	"fmt"
	"strings"

	"github.com/pipelab/go-manifold"
)

// runBasicsDemo walks through creating and draining streams.
func runBasicsDemo() {
	fmt.Println("\n▶️ Stream basics")
	fmt.Println("================")

	// StreamOf wraps known values and carries a length hint.
	stream := manifold.StreamOf("alpha", "beta", "gamma")
	hint, _ := stream.LengthHint()
	fmt.Printf("Length hint: %d\n", hint)

	for {
		v, err := stream.Next()
		if err != nil {
			break
		}
		fmt.Printf("✅ got %q\n", v)
	}

	// A drained stream stays drained.
	_, err := stream.Next()
	fmt.Printf("After the end: %v\n", err)
}

// runLazyDemo shows that generator streams only compute what is pulled.
func runLazyDemo() {
	fmt.Println("\n▶️ Lazy generators")
	fmt.Println("==================")

	pulls := 0
	squares := manifold.NewStream(func() (int, error) {
		pulls++
		return pulls * pulls, nil
	})

	fmt.Println("Pulling three squares from an endless generator:")
	for i := 0; i < 3; i++ {
		v, _ := squares.Next()
		fmt.Printf("✅ %d\n", v)
	}
	fmt.Printf("Generator ran %d times, no more\n", pulls)
}

// runMapDemo transforms a typed stream without materializing it.
func runMapDemo() {
	fmt.Println("\n▶️ MapStream")
	fmt.Println("============")

	words := manifold.StreamOf("pipe", "stage", "stream")
	upper := manifold.MapStream(words, func(s string) (string, error) {
		return strings.ToUpper(s), nil
	})

	items, err := upper.Collect()
	if err != nil {
		fmt.Printf("❌ Collect failed: %v\n", err)
		return
	}
	fmt.Printf("✅ %v\n", items)
}

// runMultiplexDemo flattens per-item result slices into one output stream.
func runMultiplexDemo() {
	fmt.Println("\n▶️ Multiplex")
	fmt.Println("============")

	// Each element is one stage invocation's result slice: a fan-out of
	// two, a drop, and a fan-out of one.
	results := manifold.StreamOf(
		[]any{"a1", "a2"},
		[]any{},
		[]any{"c1"},
	)

	flat := manifold.Multiplex(results)
	items, err := flat.Collect()
	if err != nil {
		fmt.Printf("❌ Collect failed: %v\n", err)
		return
	}

	fmt.Printf("✅ 3 result slices flattened to %d items: %v\n", len(items), items)
	fmt.Println("   The empty slice contributed nothing, so dropped items")
	fmt.Println("   simply vanish from the output.")
}

// runDeferDemo delays stream construction until the first pull.
func runDeferDemo() {
	fmt.Println("\n▶️ DeferStream")
	fmt.Println("==============")

	opened := false
	lazy := manifold.DeferStream(func() (*manifold.Stream[int], error) {
		opened = true
		return manifold.StreamOf(1, 2, 3), nil
	})

	fmt.Printf("Opened before any pull: %v\n", opened)
	v, _ := lazy.Next()
	fmt.Printf("Opened after one pull: %v (got %d)\n", opened, v)

	if err := lazy.Drain(); err != nil {
		fmt.Printf("❌ Drain failed: %v\n", err)
		return
	}
	fmt.Println("✅ Remaining items drained")
}

func main() {
	fmt.Println("Manifold Stream Primitives Demonstration")
	fmt.Println("========================================")
	fmt.Println("This example tours the pull-based stream type that carries")
	fmt.Println("items between stages: eager wrappers, lazy generators,")
	fmt.Println("mapping, flattening, and deferred construction.")

	runBasicsDemo()
	runLazyDemo()
	runMapDemo()
	runMultiplexDemo()
	runDeferDemo()

	fmt.Println("\nDemo Complete!")
}
