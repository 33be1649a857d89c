package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// pipelineYAML declares the whole ETL run: observability, sizing, and the
// extract -> transform -> load chain. The DSN placeholders are filled in at
// run time because the databases live in a temp directory.
const pipelineYAML = `
version: "1.0.0"
pipeline_name: orders-etl

metrics:
  enabled: true
  type: log

execution:
  parallel: false

stages:
  - type: fetchsqlite
    conf:
      dsn: %q
      query: "SELECT id, customer, amount_cents FROM raw_orders"
  - type: filter
    conf:
      rules:
        - field: amount_cents
          op: gt
          value: 0
  - type: strtransform
    conf:
      field: customer
      transform: trim
  - type: store
    conf:
      table: clean_orders
`

// storeStage loads items into a target table. It is the custom half of the
// ETL: extract and transform come from the built-in stages.
type storeStage struct {
	db *sql.DB
}

func (*storeStage) Name() string        { return "store" }
func (*storeStage) Kind() manifold.Kind { return manifold.KindProcessor }

func (s *storeStage) Process(ctx context.Context, item any, conf manifold.Conf) ([]any, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("store cannot handle %T items", item)
	}
	table := conf.GetString("table", "clean_orders")
	query := fmt.Sprintf(`INSERT INTO %s (id, customer, amount_cents) VALUES (?, ?, ?)`, table)
	if _, err := s.db.ExecContext(ctx, query, m["id"], m["customer"], m["amount_cents"]); err != nil {
		return nil, fmt.Errorf("storing order %v: %w", m["id"], err)
	}
	return []any{item}, nil
}

func (s *storeStage) Close(_ context.Context) error {
	return s.db.Close()
}

var (
	_ manifold.Processor = (*storeStage)(nil)
	_ manifold.Closer    = (*storeStage)(nil)
)

// seedSource creates the raw orders database, messy data included.
func seedSource(dir string) (string, error) {
	path := filepath.Join(dir, "raw.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE raw_orders (id INTEGER, customer TEXT, amount_cents INTEGER)`); err != nil {
		return "", err
	}
	_, err = db.Exec(`INSERT INTO raw_orders VALUES
		(1, '  Wren Hardware  ', 4200),
		(2, 'Moss & Sons', 0),
		(3, ' Fern Supply', 1150),
		(4, 'Moss & Sons', -300),
		(5, 'Wren Hardware', 880)`)
	return path, err
}

// openTarget creates the clean orders database the store stage writes to.
func openTarget(dir string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", filepath.Join(dir, "clean.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE clean_orders (id INTEGER, customer TEXT, amount_cents INTEGER)`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	fmt.Println("Manifold Configuration-Driven ETL Demonstration")
	fmt.Println("===============================================")
	fmt.Println("This example declares an extract-transform-load run in YAML,")
	fmt.Println("builds it with BuildPipe, and loads the result into a second")
	fmt.Println("database through a custom stage.")

	dir, err := os.MkdirTemp("", "manifold-etl-example")
	if err != nil {
		fmt.Printf("❌ Temp dir failed: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	sourceDSN, err := seedSource(dir)
	if err != nil {
		fmt.Printf("❌ Seeding source failed: %v\n", err)
		return
	}
	target, err := openTarget(dir)
	if err != nil {
		fmt.Printf("❌ Opening target failed: %v\n", err)
		return
	}
	fmt.Println("\n🗄️ Source seeded with 5 raw orders (2 of them bad)")

	// Parse the configuration.
	yamlText := fmt.Sprintf(pipelineYAML, sourceDSN)
	config, err := manifold.LoadPipelineConfigFromYAML([]byte(yamlText))
	if err != nil {
		fmt.Printf("❌ Parsing configuration failed: %v\n", err)
		return
	}
	fmt.Printf("📄 Loaded pipeline %q with %d stages\n", config.Name, len(config.Stages))

	// Register the stages the configuration names.
	registry := manifold.NewRegistry()
	if err := stages.RegisterAll(registry); err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	registry.MustRegister(&storeStage{db: target})
	defer registry.Close(context.Background())

	// Build and run.
	pipe, err := manifold.BuildPipe(config, registry, nil)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	items, err := pipe.List(ctx)
	if err != nil {
		fmt.Printf("❌ ETL run failed: %v\n", err)
		return
	}

	fmt.Printf("\n✅ Loaded %d clean orders in %.2fms:\n",
		len(items), float64(time.Since(start).Microseconds())/1000)
	for _, item := range items {
		m := item.(map[string]any)
		fmt.Printf("   #%v %-15v %6v cents\n", m["id"], strings.TrimSpace(fmt.Sprint(m["customer"])), m["amount_cents"])
	}

	// Verify the load landed.
	var count int
	if err := target.QueryRow(`SELECT COUNT(*) FROM clean_orders`).Scan(&count); err != nil {
		fmt.Printf("⚠️ Verification query failed: %v\n", err)
	} else {
		fmt.Printf("\n🗄️ Target table now holds %d rows\n", count)
	}

	fmt.Println("\nDemo Complete!")
}
