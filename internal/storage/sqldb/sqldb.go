// Package sqldb implements storage.Repository on top of database/sql. Backends
// whose drivers have no dedicated bulk path (sqlite, mysql) use it as is;
// others embed it and override CopyFrom.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqlgen"
)

// BindFn converts a cell before it is bound as a parameter.
type BindFn func(v any) any

// Repository is a database/sql backed storage.Repository.
type Repository struct {
	db      *sql.DB
	dialect sqlgen.Dialect
	bind    BindFn
}

// New wraps an open pool. bind may be nil.
func New(db *sql.DB, d sqlgen.Dialect, bind BindFn) *Repository {
	return &Repository{db: db, dialect: d, bind: bind}
}

// DB exposes the pool to backends that extend Repository.
func (r *Repository) DB() *sql.DB { return r.db }

// Dialect implements storage.Repository.
func (r *Repository) Dialect() sqlgen.Dialect { return r.dialect }

// Exec implements storage.Repository.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s: exec: %w", r.dialect.Name, err)
	}
	return nil
}

// CopyFrom inserts rows inside one transaction using multi-row INSERTs sized
// to the dialect's parameter limit.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("%s: CopyFrom: columns must not be empty", r.dialect.Name)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", r.dialect.Name, err)
	}
	rollback := func() { _ = tx.Rollback() }

	per := r.dialect.RowsPerInsert(len(columns), len(rows))
	full, err := tx.PrepareContext(ctx, sqlgen.Insert(r.dialect, table, columns, per))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("%s: prepare insert: %w", r.dialect.Name, err)
	}
	defer full.Close()

	var (
		inserted int64
		args     = make([]any, 0, per*len(columns))
	)
	for lo := 0; lo < len(rows); lo += per {
		hi := min(lo+per, len(rows))
		args = args[:0]
		for i, row := range rows[lo:hi] {
			if len(row) != len(columns) {
				rollback()
				return inserted, fmt.Errorf("%s: CopyFrom: row %d has %d values, want %d",
					r.dialect.Name, lo+i, len(row), len(columns))
			}
			for _, v := range row {
				if r.bind != nil {
					v = r.bind(v)
				}
				args = append(args, v)
			}
		}

		if hi-lo == per {
			_, err = full.ExecContext(ctx, args...)
		} else {
			_, err = tx.ExecContext(ctx, sqlgen.Insert(r.dialect, table, columns, hi-lo), args...)
		}
		if err != nil {
			rollback()
			return inserted, fmt.Errorf("%s: insert rows %d-%d: %w", r.dialect.Name, lo, hi-1, err)
		}
		inserted += int64(hi - lo)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", r.dialect.Name, err)
	}
	return inserted, nil
}

// Query implements storage.Repository.
func (r *Repository) Query(ctx context.Context, stmt string) ([][]any, error) {
	rs, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", r.dialect.Name, err)
	}
	defer rs.Close()
	return ScanAll(rs)
}

// ScanAll reads every remaining row of rs into cells. []byte values are
// copied into strings.
func ScanAll(rs *sql.Rows) ([][]any, error) {
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rs.Next() {
		row := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
		out = append(out, row)
	}
	return out, rs.Err()
}
