// Package sqlite implements storage.Repository on an embedded SQLite database
// (modernc.org/sqlite, no cgo). With DSN ":memory:" it makes a zero-setup SQL
// engine for aggregate queries.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqldb"
	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqlgen"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Config holds SQLite repository configuration.
type Config struct {
	// DSN is a file path or URI, e.g. "ufo.db", "file:ufo.db?_pragma=busy_timeout(5000)"
	// or ":memory:".
	DSN string
}

// Dialect is the SQLite flavour of generated SQL.
var Dialect = sqlgen.Dialect{
	Name:        "sqlite",
	QuoteIdent:  sqlgen.DoubleQuote,
	Placeholder: sqlgen.QuestionMark,
	MapType:     MapType,
	DoubleType:  "REAL",
	BigIntType:  "INTEGER",
	NullsLast:   true,
	MaxParams:   32766,
}

// MapType maps a column type onto a SQLite type affinity. Dates are stored as
// ISO-8601 text, which sorts and compares correctly.
func MapType(t table.Type) string {
	switch t {
	case table.Int, table.Bool:
		return "INTEGER"
	case table.Double:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// NewRepository opens cfg.DSN and returns the repository plus its cleanup.
// The pool is limited to one connection: each ":memory:" connection is a
// separate database, and SQLite serialises writers anyway.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: sqldb.New(db, Dialect, bindValue)}, closeFn, nil
}

// bindValue stores dates as text; other cells bind natively.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(table.DateLayout)
	}
	return v
}
