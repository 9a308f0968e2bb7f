package aggregate

import (
	"fmt"
	"strconv"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// PlannedAgg is an aggregation bound to a column of Plan.Input.
type PlannedAgg struct {
	Func Func
	// Input is the index into Plan.Input, or -1 for count(*).
	Input int
	Out   table.Column
}

// Plan is a Query resolved against a table.
type Plan struct {
	Query Query

	// Input holds the group columns first (in GroupBy order) followed by each
	// distinct aggregation input. Text inputs of numeric aggregations get their
	// own Double copy, so engines only ever see numbers there while count
	// still reads the raw cells.
	Input *table.Table

	Groups int // the first Groups columns of Input are the key
	Aggs   []PlannedAgg

	Output   []table.Column
	OrderIdx int
}

// slot identifies one projected input: a source column, either raw or cast
// to Double for a numeric reduction.
type slot struct {
	column string
	double bool
}

// NewPlan validates q against t and prepares the projected input. Unknown
// columns are reported as table.ErrSchema.
func NewPlan(t *table.Table, q Query) (*Plan, error) {
	if len(q.Aggregations) == 0 {
		return nil, fmt.Errorf("aggregate %q: at least one aggregation is required", q.Name)
	}

	var (
		src     []int // source column index per input slot
		cols    []table.Column
		inputAt = map[slot]int{}
		output  []table.Column
		seen    = map[string]struct{}{}
	)
	addOutput := func(c table.Column) error {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("aggregate %q: duplicate output column %q", q.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
		output = append(output, c)
		return nil
	}

	for _, g := range q.GroupBy {
		j, err := t.Index(g)
		if err != nil {
			return nil, fmt.Errorf("aggregate %q: group by: %w", q.Name, err)
		}
		key := slot{column: g}
		if _, dup := inputAt[key]; dup {
			return nil, fmt.Errorf("aggregate %q: column %q grouped twice", q.Name, g)
		}
		c := t.Columns()[j]
		inputAt[key] = len(cols)
		src = append(src, j)
		cols = append(cols, c)
		if err := addOutput(c); err != nil {
			return nil, err
		}
	}
	groups := len(cols)

	aggs := make([]PlannedAgg, 0, len(q.Aggregations))
	for _, a := range q.Aggregations {
		pa := PlannedAgg{Func: a.Func, Input: -1}
		if a.Column == "" {
			if a.Func != Count {
				return nil, fmt.Errorf("aggregate %q: %s requires a column", q.Name, a.Func)
			}
		} else {
			j, err := t.Index(a.Column)
			if err != nil {
				return nil, fmt.Errorf("aggregate %q: %s: %w", q.Name, a.Func, err)
			}
			c := t.Columns()[j]
			key := slot{column: a.Column}
			if a.Func != Count {
				switch c.Type {
				case table.Int, table.Double:
				case table.Text:
					// Numeric reductions read a Double copy; count keeps the raw text.
					key.double = true
				default:
					return nil, fmt.Errorf("aggregate %q: %w: %s over %s column %q",
						q.Name, table.ErrSchema, a.Func, c.Type, a.Column)
				}
			}
			i, known := inputAt[key]
			if !known {
				i = len(cols)
				inputAt[key] = i
				src = append(src, j)
				if key.double {
					c.Type = table.Double
				}
				cols = append(cols, c)
			}
			pa.Input = i
		}
		pa.Out = table.Column{Name: a.Name(), Type: outType(a.Func, cols, pa.Input)}
		if err := addOutput(pa.Out); err != nil {
			return nil, err
		}
		aggs = append(aggs, pa)
	}

	in, err := project(t, src, cols)
	if err != nil {
		return nil, err
	}

	orderIdx := groups
	if q.OrderBy != "" {
		orderIdx = -1
		for i, c := range output {
			if c.Name == q.OrderBy {
				orderIdx = i
				break
			}
		}
		if orderIdx < 0 {
			return nil, fmt.Errorf("aggregate %q: order by: %w: unknown output column %q",
				q.Name, table.ErrSchema, q.OrderBy)
		}
	}

	return &Plan{
		Query:    q,
		Input:    in,
		Groups:   groups,
		Aggs:     aggs,
		Output:   output,
		OrderIdx: orderIdx,
	}, nil
}

func outType(f Func, cols []table.Column, input int) table.Type {
	switch f {
	case Count:
		return table.Int
	case Avg:
		return table.Double
	default:
		if input >= 0 && cols[input].Type == table.Int {
			return table.Int
		}
		return table.Double
	}
}

// project copies the source columns src into a table typed as cols. Slots
// whose type differs from the source are cast to Double, and every slot gets
// a unique name because one source column may feed two slots.
func project(t *table.Table, src []int, cols []table.Column) (*table.Table, error) {
	srcCols := t.Columns()
	out := make([]table.Column, len(cols))
	used := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		name := c.Name
		for {
			if _, dup := used[name]; !dup {
				break
			}
			name += "#" + strconv.Itoa(i)
		}
		used[name] = struct{}{}
		out[i] = table.Column{Name: name, Type: srcCols[src[i]].Type}
	}

	rows := make([][]any, t.Len())
	for r, row := range t.Rows() {
		nr := make([]any, len(src))
		for i, j := range src {
			nr[i] = row[j]
		}
		rows[r] = nr
	}
	in, err := table.New(out, rows)
	if err != nil {
		return nil, err
	}
	for i, c := range cols {
		if c.Type != out[i].Type {
			if in, err = in.CastColumn(out[i].Name, c.Type); err != nil {
				return nil, err
			}
		}
	}
	return in, nil
}
