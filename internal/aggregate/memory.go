package aggregate

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Memory runs queries in-process. Groups appear in first-seen order before
// sorting, and the sort is stable, so ties keep that order.
type Memory struct{}

var _ Engine = Memory{}

type group struct {
	key  []any
	accs []accumulator
}

// Aggregate implements Engine.
func (Memory) Aggregate(ctx context.Context, t *table.Table, q Query) (*table.Table, error) {
	p, err := NewPlan(t, q)
	if err != nil {
		return nil, err
	}

	var (
		buckets = map[uint64][]int{}
		groups  []*group
		keyBuf  []byte
	)
	for i, r := range p.Input.Rows() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		key := r[:p.Groups]
		keyBuf = appendKey(keyBuf[:0], key)
		h := xxh3.Hash(keyBuf)

		var g *group
		for _, gi := range buckets[h] {
			if keysEqual(groups[gi].key, key) {
				g = groups[gi]
				break
			}
		}
		if g == nil {
			g = &group{key: key, accs: make([]accumulator, len(p.Aggs))}
			buckets[h] = append(buckets[h], len(groups))
			groups = append(groups, g)
		}
		for k, a := range p.Aggs {
			var v any = true // count(*) sees every row as non-null
			if a.Input >= 0 {
				v = r[a.Input]
			}
			g.accs[k].add(v)
		}
	}

	rows := make([][]any, len(groups))
	for i, g := range groups {
		row := make([]any, 0, len(p.Output))
		row = append(row, g.key...)
		for k, a := range p.Aggs {
			row = append(row, g.accs[k].result(a.Func, a.Out.Type))
		}
		rows[i] = row
	}
	SortRows(rows, p.OrderIdx, p.Query.Ascending)

	return table.New(p.Output, rows)
}

// accumulator folds the values of one aggregation within one group.
type accumulator struct {
	n        int64
	sum      float64
	isum     int64
	max, min any
}

func (a *accumulator) add(v any) {
	if v == nil {
		return
	}
	a.n++
	switch x := v.(type) {
	case int64:
		a.isum += x
		a.sum += float64(x)
	case float64:
		a.sum += x
	}
	if a.max == nil || compareCells(v, a.max) > 0 {
		a.max = v
	}
	if a.min == nil || compareCells(v, a.min) < 0 {
		a.min = v
	}
}

func (a *accumulator) result(f Func, out table.Type) any {
	switch f {
	case Count:
		return a.n
	case Avg:
		if a.n == 0 {
			return nil
		}
		return a.sum / float64(a.n)
	case Sum:
		if a.n == 0 {
			return nil
		}
		if out == table.Int {
			return a.isum
		}
		return a.sum
	case Max:
		return table.ConvertValue(a.max, out)
	case Min:
		return table.ConvertValue(a.min, out)
	}
	return nil
}

// appendKey encodes the key cells with a type tag per cell so that e.g. the
// text "1" and the int 1 never hash alike by construction.
func appendKey(b []byte, key []any) []byte {
	for _, v := range key {
		switch v.(type) {
		case nil:
			b = append(b, 0)
		case string:
			b = append(b, 1)
		case int64:
			b = append(b, 2)
		case float64:
			b = append(b, 3)
		case time.Time:
			b = append(b, 4)
		case bool:
			b = append(b, 5)
		}
		b = append(b, table.FormatCell(v)...)
		b = append(b, 0x1f)
	}
	return b
}

func keysEqual(a, b []any) bool {
	for i := range a {
		if compareCells(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// compareCells orders two non-null cells of the same column. Nulls compare
// equal to each other and lower than anything else.
func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y)
		case float64:
			return cmpFloat(float64(x), y)
		}
	case float64:
		switch y := b.(type) {
		case float64:
			return cmpFloat(x, y)
		case int64:
			return cmpFloat(x, float64(y))
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(table.FormatCell(a), table.FormatCell(b))
}

func cmpOrdered[T int64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	case math.IsNaN(a):
		return -1
	default:
		return 1
	}
}

// SortRows orders rows by column idx, descending unless ascending is set.
// Nulls always sort last and the sort is stable.
func SortRows(rows [][]any, idx int, ascending bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][idx], rows[j][idx]
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		c := compareCells(a, b)
		if ascending {
			return c < 0
		}
		return c > 0
	})
}
