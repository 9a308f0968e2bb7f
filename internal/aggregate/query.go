// Package aggregate implements grouped reductions (count, avg, max, min, sum)
// over a table.Table.
//
// A Query is resolved against a concrete table into a Plan, which projects the
// columns the query needs and fixes the output schema. Engines execute plans:
// Memory runs them in-process, and storage.SQLEngine pushes them to a SQL
// database. Both produce the same groups for the same query.
package aggregate

import (
	"context"
	"fmt"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Func is an aggregate function name.
type Func string

const (
	Count Func = "count"
	Avg   Func = "avg"
	Max   Func = "max"
	Min   Func = "min"
	Sum   Func = "sum"
)

// ParseFunc resolves a function name from configuration.
func ParseFunc(s string) (Func, error) {
	switch f := Func(strings.ToLower(strings.TrimSpace(s))); f {
	case Count, Avg, Max, Min, Sum:
		return f, nil
	case "mean":
		return Avg, nil
	default:
		return "", fmt.Errorf("unknown aggregate function %q", s)
	}
}

// Aggregation is one output column of a query. Column may be empty only for
// Count, which then counts rows.
type Aggregation struct {
	Func   Func
	Column string
	As     string
}

// Name returns the output column name: As when set, otherwise "count" for
// count(*) and "func(column)" for the rest.
func (a Aggregation) Name() string {
	if a.As != "" {
		return a.As
	}
	if a.Column == "" {
		return string(a.Func)
	}
	return fmt.Sprintf("%s(%s)", a.Func, a.Column)
}

// Query is a group-by with one or more aggregations, ordered by one output
// column.
type Query struct {
	// Name labels the result for presentation and logs.
	Name string

	GroupBy      []string
	Aggregations []Aggregation

	// OrderBy names an output column; empty means the first aggregation.
	OrderBy string

	// Ascending flips the default descending order.
	Ascending bool

	// Hint is the rendering hint ("auto", "list", "bar", "map") attached to
	// the result when it is presented.
	Hint string
}

// Validate reports whether q can run against t without running it.
func (q Query) Validate(t *table.Table) error {
	_, err := NewPlan(t, q)
	return err
}

// Engine executes aggregate queries.
type Engine interface {
	Aggregate(ctx context.Context, t *table.Table, q Query) (*table.Table, error)
}
