// Package present hands tables to display sinks. A sink renders or ships a
// Presentation; how a table is drawn is steered by a Hint (list, bar chart,
// map) that is either configured or inferred from the table's shape.
package present

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Hint tells a sink how a table is meant to be looked at.
type Hint string

const (
	HintAuto Hint = "auto"
	HintList Hint = "list"
	HintBar  Hint = "bar"
	HintMap  Hint = "map"
)

// ParseHint resolves a configured hint. Empty means HintAuto.
func ParseHint(s string) (Hint, error) {
	switch h := Hint(strings.ToLower(strings.TrimSpace(s))); h {
	case "":
		return HintAuto, nil
	case HintAuto, HintList, HintBar, HintMap:
		return h, nil
	default:
		return "", fmt.Errorf("unknown presentation hint %q", s)
	}
}

// Presentation is one table handed to the sinks.
type Presentation struct {
	RunID string
	Name  string
	Hint  Hint
	Table *table.Table
	At    time.Time
}

// Sink displays or forwards presentations.
type Sink interface {
	Present(ctx context.Context, p Presentation) error
}

// InferHint picks a hint from the column types: two numeric columns plus a
// text column read as map points, one text plus one numeric column as a bar
// chart, anything else as a list.
func InferHint(t *table.Table) Hint {
	var text, num int
	for _, c := range t.Columns() {
		switch {
		case c.Type == table.Text:
			text++
		case c.Type.Numeric():
			num++
		}
	}
	switch {
	case num == 2 && text == 1 && t.Width() == 3:
		return HintMap
	case num == 1 && text == 1 && t.Width() == 2:
		return HintBar
	default:
		return HintList
	}
}

// Resolve returns p.Hint, inferring it when it is auto or unset.
func Resolve(p Presentation) Hint {
	if p.Hint == "" || p.Hint == HintAuto {
		return InferHint(p.Table)
	}
	return p.Hint
}

// Named pairs a sink with the name used in logs and metrics.
type Named struct {
	Name string
	Sink Sink
}

// Multi fans a presentation out to every sink. A failing sink does not stop
// the others; OnError, when set, is told about each failure.
type Multi struct {
	Sinks   []Named
	OnError func(sink string, err error)
}

// Present implements Sink. It returns every failure joined.
func (m *Multi) Present(ctx context.Context, p Presentation) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Sink.Present(ctx, p); err != nil {
			err = fmt.Errorf("sink %s: %w", s.Name, err)
			if m.OnError != nil {
				m.OnError(s.Name, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Points locates the latitude, longitude and label columns of a map
// presentation. Columns named latitude/lat and longitude/lon/lng win;
// otherwise the first two numeric columns are used. label is the first other
// text column, or -1.
func Points(t *table.Table) (lat, lon, label int, ok bool) {
	lat, lon, label = -1, -1, -1
	var numeric []int
	for i, c := range t.Columns() {
		switch strings.ToLower(c.Name) {
		case "latitude", "lat":
			lat = i
		case "longitude", "lon", "lng", "long":
			lon = i
		}
		if c.Type.Numeric() {
			numeric = append(numeric, i)
		}
	}
	if lat < 0 || lon < 0 {
		if len(numeric) < 2 {
			return -1, -1, label, false
		}
		lat, lon = numeric[0], numeric[1]
	}
	for i, c := range t.Columns() {
		if c.Type == table.Text && i != lat && i != lon {
			label = i
			break
		}
	}
	return lat, lon, label, true
}

// Bars locates the label and value columns of a bar presentation: the first
// text column and the first numeric column.
func Bars(t *table.Table) (label, value int, ok bool) {
	label, value = -1, -1
	for i, c := range t.Columns() {
		switch {
		case label < 0 && c.Type == table.Text:
			label = i
		case value < 0 && c.Type.Numeric():
			value = i
		}
	}
	return label, value, label >= 0 && value >= 0
}

// Float reads a numeric cell. Text cells are parsed, since coordinates are
// often presented before they are cast.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	return 0, false
}
