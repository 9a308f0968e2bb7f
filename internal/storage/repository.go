// Package storage holds the backend-agnostic contract for SQL databases used
// as aggregate engines, a kind-keyed factory that backends register with at
// init time, a batched loader, and SQLEngine, which runs aggregate queries on
// any registered backend.
//
// Backends live in subpackages (sqlite, postgres, mssql, mysql); importing
// storage/all makes every one of them available to New.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqlgen"
)

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "sqlite" or "postgres".
	Kind string

	// DSN is passed to the backend driver unchanged.
	DSN string
}

// Repository is a connection to one SQL database.
type Repository interface {
	// Dialect describes how to write SQL for this backend.
	Dialect() sqlgen.Dialect

	// Exec runs a statement that returns no rows (DDL).
	Exec(ctx context.Context, sql string) error

	// CopyFrom bulk-inserts rows (aligned to columns) into table and reports
	// how many were written.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Query runs sql and returns every row. Cells are whatever the driver
	// produced, except that []byte is returned as string.
	Query(ctx context.Context, sql string) ([][]any, error)

	// Close releases the connection pool.
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind. Backends call it from
// init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository with the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for kind %q (have %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend names in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
