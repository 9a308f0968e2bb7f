package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/aggregate"
	"github.com/RobertDonnan/ufo-notebook/internal/present"
)

// QueryFromOptions builds an aggregate query from one entry of an aggregate
// step's "queries" list:
//
//	{ "name": "...", "group_by": ["Country"], "order_by": "n", "order": "desc", "hint": "bar",
//	  "aggregations": [ { "func": "count", "column": "", "as": "n" } ] }
//
// Checks that need the table (column existence, input types) are left to
// aggregate.NewPlan.
func QueryFromOptions(o Options) (aggregate.Query, error) {
	q := aggregate.Query{
		Name:    o.String("name", ""),
		GroupBy: o.StringSlice("group_by"),
		OrderBy: o.String("order_by", ""),
		Hint:    o.String("hint", ""),
	}

	switch strings.ToLower(o.String("order", "desc")) {
	case "desc", "descending":
	case "asc", "ascending":
		q.Ascending = true
	default:
		return aggregate.Query{}, fmt.Errorf("order must be asc or desc, got %q", o.String("order", ""))
	}
	if _, err := present.ParseHint(q.Hint); err != nil {
		return aggregate.Query{}, err
	}

	aggs := o.List("aggregations")
	if len(aggs) == 0 {
		return aggregate.Query{}, errors.New("query requires at least one aggregation")
	}
	seen := map[string]bool{}
	for _, g := range q.GroupBy {
		seen[g] = true
	}
	for i, a := range aggs {
		f, err := aggregate.ParseFunc(a.String("func", ""))
		if err != nil {
			return aggregate.Query{}, fmt.Errorf("aggregations[%d]: %w", i, err)
		}
		agg := aggregate.Aggregation{Func: f, Column: a.String("column", ""), As: a.String("as", "")}
		if agg.Column == "" && f != aggregate.Count {
			return aggregate.Query{}, fmt.Errorf("aggregations[%d]: %s requires a column", i, f)
		}
		if seen[agg.Name()] {
			return aggregate.Query{}, fmt.Errorf("aggregations[%d]: duplicate output column %q", i, agg.Name())
		}
		seen[agg.Name()] = true
		q.Aggregations = append(q.Aggregations, agg)
	}
	if q.OrderBy != "" && !seen[q.OrderBy] {
		return aggregate.Query{}, fmt.Errorf("order_by %q is not an output column", q.OrderBy)
	}
	return q, nil
}
