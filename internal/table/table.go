// Package table holds the in-memory tabular model the pipeline operates on:
// named, typed columns and rows of nullable cells.
//
// A *Table is an immutable value. Operations such as CastColumn, FilterNotNull
// and Select return a new table and never touch the rows of their receiver,
// so a table can be shared freely between goroutines once built.
package table

import "fmt"

// Column describes one named, typed column.
type Column struct {
	Name string
	Type Type
}

// Table is an ordered set of columns and the rows that populate them. A nil
// cell is null.
type Table struct {
	cols  []Column
	index map[string]int
	rows  [][]any
}

// New builds a table from columns and rows. Column names must be unique and
// every row must be as wide as the column list. Rows are used as given; the
// caller must not modify them afterwards.
func New(cols []Column, rows [][]any) (*Table, error) {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := index[c.Name]; dup {
			return nil, fmt.Errorf("table: duplicate column %q", c.Name)
		}
		index[c.Name] = i
	}
	for i, r := range rows {
		if len(r) != len(cols) {
			return nil, fmt.Errorf("table: row %d has %d cells, want %d", i, len(r), len(cols))
		}
	}
	c := make([]Column, len(cols))
	copy(c, cols)
	return &Table{cols: c, index: index, rows: rows}, nil
}

// MustNew is New for literals in tests and fixed schemas.
func MustNew(cols []Column, rows [][]any) *Table {
	t, err := New(cols, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// TextColumns is a convenience for all-text schemas such as freshly loaded CSV.
func TextColumns(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: Text}
	}
	return cols
}

// Columns returns a copy of the column list.
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.cols))
	copy(out, t.cols)
	return out
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.Name
	}
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.cols) }

// Index returns the position of the named column or a schema error.
func (t *Table) Index(name string) (int, error) {
	i, ok := t.index[name]
	if !ok {
		return -1, unknownColumn(name)
	}
	return i, nil
}

// Column returns the named column or a schema error.
func (t *Table) Column(name string) (Column, error) {
	i, err := t.Index(name)
	if err != nil {
		return Column{}, err
	}
	return t.cols[i], nil
}

// Row returns row i. The slice is shared with the table and must be treated as
// read-only.
func (t *Table) Row(i int) []any { return t.rows[i] }

// Rows returns every row; like Row, the result is read-only.
func (t *Table) Rows() [][]any { return t.rows }

// Value returns the cell at row i of the named column.
func (t *Table) Value(i int, name string) (any, error) {
	j, err := t.Index(name)
	if err != nil {
		return nil, err
	}
	return t.rows[i][j], nil
}

// NullCount returns how many cells of the named column are null.
func (t *Table) NullCount(name string) (int, error) {
	j, err := t.Index(name)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range t.rows {
		if r[j] == nil {
			n++
		}
	}
	return n, nil
}

// Head returns a table with at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.rows) {
		n = len(t.rows)
	}
	return &Table{cols: t.cols, index: t.index, rows: t.rows[:n:n]}
}

// Schema describes the table as rows of (column, type), which is how a schema
// is handed to a display sink.
func (t *Table) Schema() *Table {
	rows := make([][]any, len(t.cols))
	for i, c := range t.cols {
		rows[i] = []any{c.Name, c.Type.String()}
	}
	return MustNew(TextColumns("column", "type"), rows)
}
