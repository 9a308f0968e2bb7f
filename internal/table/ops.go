package table

// FilterNotNull returns the rows in which every listed column is non-null.
// The result never has more rows than t.
func (t *Table) FilterNotNull(names ...string) (*Table, error) {
	idx, err := t.indexes(names)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(t.rows))
next:
	for _, r := range t.rows {
		for _, j := range idx {
			if r[j] == nil {
				continue next
			}
		}
		rows = append(rows, r)
	}
	return &Table{cols: t.cols, index: t.index, rows: rows}, nil
}

// Select projects the listed columns, in the listed order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx, err := t.indexes(names)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, len(idx))
	for k, j := range idx {
		cols[k] = t.cols[j]
	}
	rows := make([][]any, len(t.rows))
	for i, r := range t.rows {
		nr := make([]any, len(idx))
		for k, j := range idx {
			nr[k] = r[j]
		}
		rows[i] = nr
	}
	return New(cols, rows)
}

func (t *Table) indexes(names []string) ([]int, error) {
	idx := make([]int, len(names))
	for k, n := range names {
		j, err := t.Index(n)
		if err != nil {
			return nil, err
		}
		idx[k] = j
	}
	return idx, nil
}
