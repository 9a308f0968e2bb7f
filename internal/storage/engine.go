package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RobertDonnan/ufo-notebook/internal/aggregate"
	"github.com/RobertDonnan/ufo-notebook/internal/storage/sqlgen"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// DefaultBatchSize bounds rows per CopyFrom call when none is configured.
const DefaultBatchSize = 5000

// SQLEngine runs aggregate queries on a SQL database. Each query gets its own
// scratch table, so queries may run concurrently on one engine.
type SQLEngine struct {
	repo      Repository
	job       string
	batchSize int

	// newName is a test seam for scratch table names.
	newName func() string
}

var _ aggregate.Engine = (*SQLEngine)(nil)

// NewSQLEngine wraps repo. job labels logs and batch metrics.
func NewSQLEngine(repo Repository, job string, batchSize int) *SQLEngine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SQLEngine{repo: repo, job: job, batchSize: batchSize, newName: scratchName}
}

func scratchName() string {
	return "ufo_scratch_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Aggregate implements aggregate.Engine: create scratch table, load the
// projected input, run the generated query, drop the table.
func (e *SQLEngine) Aggregate(ctx context.Context, t *table.Table, q aggregate.Query) (*table.Table, error) {
	p, err := aggregate.NewPlan(t, q)
	if err != nil {
		return nil, err
	}

	d := e.repo.Dialect()
	name := e.newName()
	ddl, err := sqlgen.CreateTable(d, sqlgen.ScratchDef(d, name, p.Input.Columns()))
	if err != nil {
		return nil, fmt.Errorf("aggregate %q: %w", q.Name, err)
	}
	if err := e.repo.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("aggregate %q: create scratch table: %w", q.Name, err)
	}
	defer func() {
		dropCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := e.repo.Exec(dropCtx, sqlgen.DropTable(d, name)); err != nil {
			log.Printf("sqlengine: drop scratch table=%s err=%v", name, err)
		}
	}()

	cols := make([]string, p.Input.Width())
	for i := range cols {
		cols[i] = sqlgen.ScratchColumn(i)
	}
	start := time.Now()
	n, err := LoadRows(ctx, e.job, cols, p.Input.Rows(), e.batchSize,
		func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
			return e.repo.CopyFrom(ctx, name, columns, rows)
		})
	if err != nil {
		return nil, fmt.Errorf("aggregate %q: load scratch table: %w", q.Name, err)
	}
	if n != int64(p.Input.Len()) {
		return nil, fmt.Errorf("aggregate %q: loaded %d of %d rows", q.Name, n, p.Input.Len())
	}

	stmt := sqlgen.Aggregate(d, name, p)
	raw, err := e.repo.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("aggregate %q: query: %w", q.Name, err)
	}
	rows := make([][]any, len(raw))
	for i, r := range raw {
		if len(r) != len(p.Output) {
			return nil, fmt.Errorf("aggregate %q: query returned %d columns, want %d", q.Name, len(r), len(p.Output))
		}
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = table.ConvertValue(v, p.Output[j].Type)
		}
		rows[i] = row
	}
	// Not every backend supports NULLS LAST; re-sort so all engines agree.
	aggregate.SortRows(rows, p.OrderIdx, q.Ascending)

	log.Printf("sqlengine: backend=%s query=%q rows_in=%d groups=%d elapsed=%s",
		d.Name, q.Name, n, len(rows), time.Since(start).Truncate(time.Millisecond))
	return table.New(p.Output, rows)
}
