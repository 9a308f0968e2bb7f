// Package mysql implements storage.Repository on MySQL 8 with
// go-sql-driver/mysql. Scratch tables are filled with multi-row INSERTs.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqldb"
	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqlgen"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN uses the driver's format, e.g. "etl:secret@tcp(localhost:3306)/ufo".
	DSN string
}

// Dialect is the MySQL flavour of generated SQL. MySQL sorts nulls first
// ascending and last descending; callers re-sort results.
var Dialect = sqlgen.Dialect{
	Name:        "mysql",
	QuoteIdent:  sqlgen.Backtick,
	Placeholder: sqlgen.QuestionMark,
	MapType:     MapType,
	DoubleType:  "DOUBLE",
	BigIntType:  "SIGNED",
	MaxParams:   65535,
}

// MapType maps a column type onto a MySQL type.
func MapType(t table.Type) string {
	switch t {
	case table.Int:
		return "BIGINT"
	case table.Double:
		return "DOUBLE"
	case table.Date:
		return "DATE"
	case table.Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// ParseConfig parses dsn and turns on the options the engine relies on:
// DATE columns scan as time.Time and timestamps are UTC.
func ParseConfig(dsn string) (*mysql.Config, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	return mc, nil
}

// NewRepository opens a pool for cfg.DSN and returns it with its cleanup
// function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	mc, err := ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return &Repository{Repository: sqldb.New(db, Dialect, nil)}, closeFn, nil
}
