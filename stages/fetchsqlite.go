package stages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/pipelab/go-manifold"
)

// FetchSQLite runs a query against a SQLite database and streams the rows as
// map items, one key per column. The database opens lazily on first use and
// stays open for the instance's lifetime; Registry.Close releases it through
// the Closer interface. An instance binds to the first DSN it opens, so use
// one instance per database.
//
// Conf keys:
//   - dsn: the database path or URI (required)
//   - query: the SQL to run (required)
//   - delay: pause before the query, honored when a collection paces its
//     sources
type FetchSQLite struct {
	helper    manifold.StageHelper
	presetDSN string
	mu        sync.RWMutex
	db        *sql.DB
	dsn       string
}

var (
	_ manifold.Operator    = (*FetchSQLite)(nil)
	_ manifold.Closer      = (*FetchSQLite)(nil)
	_ manifold.Initializer = (*FetchSQLite)(nil)
)

// NewFetchSQLite creates the fetchsqlite stage.
func NewFetchSQLite() *FetchSQLite {
	return &FetchSQLite{}
}

// NewFetchSQLiteWithDSN creates the stage bound to dsn up front. Confs may
// then omit the dsn key, and Registry.Setup opens the connection eagerly
// instead of on the first query.
func NewFetchSQLiteWithDSN(dsn string) *FetchSQLite {
	return &FetchSQLite{presetDSN: dsn}
}

// Setup implements Initializer for FetchSQLite. It opens the connection when
// the instance was constructed with a DSN and does nothing otherwise.
func (f *FetchSQLite) Setup(ctx context.Context) error {
	if f.presetDSN == "" {
		return nil
	}
	_, err := f.open(ctx, f.presetDSN)
	return err
}

// Name implements Stage interface for FetchSQLite.
func (*FetchSQLite) Name() string { return "fetchsqlite" }

// Kind implements Stage interface for FetchSQLite.
func (*FetchSQLite) Kind() manifold.Kind { return manifold.KindOperator }

// Operate implements Operator interface for FetchSQLite.
func (f *FetchSQLite) Operate(ctx context.Context, _ *manifold.Stream[any], conf manifold.Conf) (*manifold.Stream[any], error) {
	dsn := conf.GetString("dsn", f.presetDSN)
	if dsn == "" {
		return nil, errors.New("fetchsqlite requires a 'dsn' setting")
	}
	query := conf.GetString("query", "")
	if query == "" {
		return nil, errors.New("fetchsqlite requires a 'query' setting")
	}
	if err := waitDelay(ctx, conf); err != nil {
		return nil, err
	}

	db, err := f.open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite database: %w", err)
	}
	defer rows.Close()

	items, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("reading sqlite rows: %w", err)
	}
	return manifold.StreamOf(items...), nil
}

func (f *FetchSQLite) open(ctx context.Context, dsn string) (*sql.DB, error) {
	err := f.helper.DoOnceWithError(func() error {
		db, openErr := sql.Open("sqlite3", dsn)
		if openErr != nil {
			return openErr
		}
		if pingErr := db.PingContext(ctx); pingErr != nil {
			db.Close()
			return pingErr
		}
		f.mu.Lock()
		f.db = db
		f.dsn = dsn
		f.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.db == nil {
		return nil, errors.New("sqlite database is closed")
	}
	if f.dsn != dsn {
		return nil, fmt.Errorf("fetchsqlite instance is bound to %q, cannot open %q", f.dsn, dsn)
	}
	return f.db, nil
}

// Close implements Closer interface for FetchSQLite.
func (f *FetchSQLite) Close(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db == nil {
		return nil
	}
	err := f.db.Close()
	f.db = nil
	return err
}

func scanRows(rows *sql.Rows) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var items []any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		item := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			// The driver hands text columns back as byte slices.
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			item[col] = v
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
