package table

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// CastOption tunes CastColumn.
type CastOption func(*caster)

// WithLayout sets the Go time layout used for Date casts. The default is
// DateLayout, which additionally accepts timestamps and truncates them to the
// day.
func WithLayout(layout string) CastOption {
	return func(c *caster) {
		if strings.TrimSpace(layout) != "" {
			c.layout = layout
		}
	}
}

// CastColumn returns a new table whose named column is reinterpreted as type
// to. Cells that do not match the grammar of the target type become null; a
// cast never fails because of cell contents. Only an unknown column name
// returns an error (ErrSchema).
func (t *Table) CastColumn(name string, to Type, opts ...CastOption) (*Table, error) {
	j, err := t.Index(name)
	if err != nil {
		return nil, err
	}
	c := caster{to: to}
	for _, o := range opts {
		o(&c)
	}

	rows := make([][]any, len(t.rows))
	for i, r := range t.rows {
		nr := make([]any, len(r))
		copy(nr, r)
		nr[j] = c.castCell(r[j])
		rows[i] = nr
	}
	cols := t.Columns()
	cols[j].Type = to
	return &Table{cols: cols, index: t.index, rows: rows}, nil
}

// caster converts single cells; the zero layout means DateLayout with the
// lenient timestamp fallbacks.
type caster struct {
	to     Type
	layout string
}

func (c caster) castCell(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		out, _ := c.cast(s)
		return out
	}
	// Already typed: Double -> Int keeps integral values in int64 range only,
	// matching the text grammar.
	return ConvertValue(v, c.to)
}

// cast parses s as the target type. It returns (nil, false) when s does not
// fit the grammar.
func (c caster) cast(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	switch c.to {
	case Int:
		if v, ok := toIntFast(s); ok {
			return v, true
		}
	case Double:
		if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return v, true
		}
	case Date:
		if v, ok := c.parseDate(s); ok {
			return v, true
		}
	case Bool:
		if v, ok := toBool(s); ok {
			return v, true
		}
	case Text:
		return s, true
	}
	return nil, false
}

// toIntFast parses integers and only falls back to float parsing when the
// field contains a '.', accepting integral values such as "42.0".
func toIntFast(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
				return int64(f), true
			}
		}
	}
	return 0, false
}

func toBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// timestampLayouts are tried after DateLayout when no explicit layout is set;
// their time of day is discarded.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

func (c caster) parseDate(s string) (time.Time, bool) {
	if c.layout != "" && c.layout != DateLayout {
		t, err := time.Parse(c.layout, s)
		if err != nil {
			return time.Time{}, false
		}
		return truncateDay(t), true
	}
	if t, ok := parseISODate(s); ok {
		return t, true
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

// parseISODate is an allocation-free parser for "2006-01-02" that also
// rejects impossible days.
func parseISODate(s string) (time.Time, bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	y3, y2, y1, y0 := s[0]-'0', s[1]-'0', s[2]-'0', s[3]-'0'
	m1, m0 := s[5]-'0', s[6]-'0'
	d1, d0 := s[8]-'0', s[9]-'0'
	if y3 > 9 || y2 > 9 || y1 > 9 || y0 > 9 || m1 > 9 || m0 > 9 || d1 > 9 || d0 > 9 {
		return time.Time{}, false
	}
	year := int(y3)*1000 + int(y2)*100 + int(y1)*10 + int(y0)
	mon := int(m1)*10 + int(m0)
	day := int(d1)*10 + int(d0)
	if mon < 1 || mon > 12 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		// time.Date normalised an overflow such as 2021-02-30.
		return time.Time{}, false
	}
	return t, true
}
