package present

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// DefaultMaxRows bounds rows rendered per presentation by the console sink.
const DefaultMaxRows = 20

const barWidth = 40

// Console renders presentations as text.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	maxRows int
}

// NewConsole writes to w, rendering at most maxRows rows per presentation
// (DefaultMaxRows when maxRows <= 0).
func NewConsole(w io.Writer, maxRows int) *Console {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Console{w: w, maxRows: maxRows}
}

// Present implements Sink.
func (c *Console) Present(ctx context.Context, p Presentation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	hint := Resolve(p)
	fmt.Fprintf(&b, "== %s [%s] rows=%d ==\n", p.Name, hint, p.Table.Len())

	switch hint {
	case HintBar:
		if !c.bar(&b, p.Table) {
			c.list(&b, p.Table)
		}
	case HintMap:
		if !c.points(&b, p.Table) {
			c.list(&b, p.Table)
		}
	default:
		c.list(&b, p.Table)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *Console) list(b *strings.Builder, t *table.Table) {
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Names(), "\t"))
	cells := make([]string, t.Width())
	for _, row := range t.Head(c.maxRows).Rows() {
		for i, v := range row {
			cells[i] = displayCell(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	c.more(b, t)
}

func (c *Console) bar(b *strings.Builder, t *table.Table) bool {
	label, value, ok := Bars(t)
	if !ok {
		return false
	}
	rows := t.Head(c.maxRows).Rows()
	peak := 0.0
	for _, r := range rows {
		if f, ok := Float(r[value]); ok {
			peak = math.Max(peak, math.Abs(f))
		}
	}

	names := t.Names()
	fmt.Fprintf(b, "%s by %s\n", names[value], names[label])
	tw := tabwriter.NewWriter(b, 0, 0, 1, ' ', 0)
	for _, r := range rows {
		f, ok := Float(r[value])
		n := 0
		if ok && peak > 0 {
			n = int(math.Round(math.Abs(f) / peak * barWidth))
		}
		fmt.Fprintf(tw, "%s\t|%s\t%s\n", displayCell(r[label]), strings.Repeat("#", n), displayCell(r[value]))
	}
	_ = tw.Flush()
	c.more(b, t)
	return true
}

func (c *Console) points(b *strings.Builder, t *table.Table) bool {
	lat, lon, label, ok := Points(t)
	if !ok {
		return false
	}
	var (
		n              int
		minLat, maxLat = math.Inf(1), math.Inf(-1)
		minLon, maxLon = math.Inf(1), math.Inf(-1)
		shown          [][3]string
	)
	for _, r := range t.Rows() {
		la, ok1 := Float(r[lat])
		lo, ok2 := Float(r[lon])
		if !ok1 || !ok2 {
			continue
		}
		n++
		minLat, maxLat = math.Min(minLat, la), math.Max(maxLat, la)
		minLon, maxLon = math.Min(minLon, lo), math.Max(maxLon, lo)
		if len(shown) < c.maxRows {
			var name string
			if label >= 0 {
				name = displayCell(r[label])
			}
			shown = append(shown, [3]string{table.FormatCell(la), table.FormatCell(lo), name})
		}
	}
	if n == 0 {
		fmt.Fprintf(b, "points=0\n")
		return true
	}
	fmt.Fprintf(b, "points=%d lat=[%g, %g] lon=[%g, %g]\n", n, minLat, maxLat, minLon, maxLon)
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "lat\tlon\tlabel")
	for _, s := range shown {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s[0], s[1], s[2])
	}
	_ = tw.Flush()
	if n > len(shown) {
		fmt.Fprintf(b, "... %d more points\n", n-len(shown))
	}
	return true
}

func (c *Console) more(b *strings.Builder, t *table.Table) {
	if extra := t.Len() - c.maxRows; extra > 0 {
		fmt.Fprintf(b, "... %d more rows\n", extra)
	}
}

func displayCell(v any) string {
	if v == nil {
		return "null"
	}
	return table.FormatCell(v)
}
