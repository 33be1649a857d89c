package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pipelab/go-manifold"
	"github.com/pipelab/go-manifold/stages"
)

// seedArticles creates a throwaway database with a handful of articles and
// returns its path.
func seedArticles(dir string) (string, error) {
	path := filepath.Join(dir, "articles.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	schema := `CREATE TABLE articles (
		id     INTEGER PRIMARY KEY,
		title  TEXT NOT NULL,
		topic  TEXT NOT NULL,
		score  INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return "", fmt.Errorf("creating schema: %w", err)
	}

	rows := []struct {
		title, topic string
		score        int
	}{
		{"error handling beyond if err != nil", "go", 8},
		{"composting for beginners", "garden", 3},
		{"profiling allocations with pprof", "go", 9},
		{"winter lawn maintenance", "garden", 2},
		{"generics in the standard library", "go", 7},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO articles (title, topic, score) VALUES (?, ?, ?)`,
			r.title, r.topic, r.score); err != nil {
			return "", fmt.Errorf("seeding articles: %w", err)
		}
	}
	return path, nil
}

// buildArticlePipe reads articles from the database, keeps the high-scoring
// ones, uppercases their titles, and sorts them by score.
func buildArticlePipe(registry *manifold.Registry, dsn string) (*manifold.Pipe, error) {
	pipe, err := manifold.NewPipe(registry, "fetchsqlite",
		manifold.WithName("articles"),
		manifold.WithConf(manifold.Conf{
			"dsn":   dsn,
			"query": "SELECT title, topic, score FROM articles",
		}),
	)
	if err != nil {
		return nil, err
	}

	pipe, err = pipe.Then("filter", manifold.Conf{
		"rules": map[string]any{"field": "score", "op": "gt", "value": 5},
	})
	if err != nil {
		return nil, err
	}

	pipe, err = pipe.Then("strtransform", manifold.Conf{
		"transform": "upper",
		"field":     "title",
	})
	if err != nil {
		return nil, err
	}

	return pipe.Then("sort", manifold.Conf{"field": "score", "reverse": true})
}

func main() {
	fmt.Println("Manifold SQLite Pipeline Demonstration")
	fmt.Println("======================================")
	fmt.Println("This example streams rows out of a SQLite database and runs")
	fmt.Println("them through filter, transform, and sort stages. The registry")
	fmt.Println("owns the database handle and releases it on Close.")

	dir, err := os.MkdirTemp("", "manifold-db-example")
	if err != nil {
		fmt.Printf("❌ Temp dir failed: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	dsn, err := seedArticles(dir)
	if err != nil {
		fmt.Printf("❌ Seeding failed: %v\n", err)
		return
	}
	fmt.Printf("\n🗄️ Seeded 5 articles into %s\n", dsn)

	registry := manifold.NewRegistry()
	if err := stages.RegisterAll(registry); err != nil {
		fmt.Printf("❌ Registry setup failed: %v\n", err)
		return
	}
	defer registry.Close(context.Background())

	pipe, err := buildArticlePipe(registry, dsn)
	if err != nil {
		fmt.Printf("❌ Building pipe failed: %v\n", err)
		return
	}

	items, err := pipe.List(context.Background())
	if err != nil {
		fmt.Printf("❌ Pipe failed: %v\n", err)
		return
	}

	fmt.Printf("\n✅ %d of 5 articles scored above 5:\n", len(items))
	for i, item := range items {
		m := item.(map[string]any)
		fmt.Printf("   %d. [score %v] %v\n", i+1, m["score"], m["title"])
	}

	// Closing the registry closes the fetchsqlite stage's database.
	if err := registry.Close(context.Background()); err != nil {
		fmt.Printf("⚠️ Registry close: %v\n", err)
	} else {
		fmt.Println("\n🗄️ Database handle released through Registry.Close")
	}

	fmt.Println("\nDemo Complete!")
}
