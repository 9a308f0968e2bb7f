package sqlgen

import (
	"fmt"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/aggregate"
	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// ColumnDef describes one column of a table to create.
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
}

// TableDef holds a table name (possibly dotted) and its columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ScratchColumn names the i-th column of a scratch table. Positional names
// keep generated SQL independent of source header spellings.
func ScratchColumn(i int) string { return fmt.Sprintf("c%d", i) }

// ScratchDef describes a scratch table holding the given column types.
func ScratchDef(d Dialect, name string, cols []table.Column) TableDef {
	def := TableDef{FQN: name, Columns: make([]ColumnDef, len(cols))}
	for i, c := range cols {
		def.Columns[i] = ColumnDef{Name: ScratchColumn(i), SQLType: d.MapType(c.Type), Nullable: true}
	}
	return def
}

// CreateTable renders CREATE TABLE for def.
func CreateTable(d Dialect, def TableDef) (string, error) {
	if strings.TrimSpace(def.FQN) == "" {
		return "", fmt.Errorf("%s ddl: table name must not be empty", d.Name)
	}
	if len(def.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name)
	}
	cols := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.SQLType) == "" {
			return "", fmt.Errorf("%s ddl: column %d needs a name and type", d.Name, i)
		}
		null := " NULL"
		if !c.Nullable {
			null = " NOT NULL"
		}
		cols[i] = d.QuoteIdent(c.Name) + " " + c.SQLType + null
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.QuoteFQN(def.FQN), strings.Join(cols, ",\n  ")), nil
}

// DropTable renders DROP TABLE IF EXISTS.
func DropTable(d Dialect, name string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteFQN(name)
}

// Insert renders a multi-row INSERT with nrows groups of placeholders.
func Insert(d Dialect, name string, columns []string, nrows int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", d.QuoteFQN(name), strings.Join(quoted, ", "))
	p := 0
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(p))
			p++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// RowsPerInsert returns how many rows of width cols fit one statement.
func (d Dialect) RowsPerInsert(cols, want int) int {
	if want <= 0 {
		want = 1
	}
	if d.MaxParams <= 0 || cols == 0 {
		return want
	}
	if n := d.MaxParams / cols; n < want {
		if n < 1 {
			return 1
		}
		return n
	}
	return want
}

// OutputAlias names the i-th output column of an aggregate query.
func OutputAlias(i int) string { return fmt.Sprintf("o%d", i) }

// Aggregate renders the group-by query for p over the scratch table name,
// whose columns mirror p.Input positionally.
func Aggregate(d Dialect, name string, p *aggregate.Plan) string {
	sel := make([]string, 0, len(p.Output))
	group := make([]string, 0, p.Groups)
	for i := 0; i < p.Groups; i++ {
		c := d.QuoteIdent(ScratchColumn(i))
		sel = append(sel, c+" AS "+d.QuoteIdent(OutputAlias(i)))
		group = append(group, c)
	}
	for k, a := range p.Aggs {
		sel = append(sel, aggExpr(d, a)+" AS "+d.QuoteIdent(OutputAlias(p.Groups+k)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(sel, ", "), d.QuoteFQN(name))
	if len(group) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(group, ", "))
	}
	dir := " DESC"
	if p.Query.Ascending {
		dir = " ASC"
	}
	fmt.Fprintf(&b, " ORDER BY %s%s", d.QuoteIdent(OutputAlias(p.OrderIdx)), dir)
	if d.NullsLast {
		b.WriteString(" NULLS LAST")
	}
	return b.String()
}

func aggExpr(d Dialect, a aggregate.PlannedAgg) string {
	var col string
	if a.Input >= 0 {
		col = d.QuoteIdent(ScratchColumn(a.Input))
	}
	switch a.Func {
	case aggregate.Count:
		if col == "" {
			return "COUNT(*)"
		}
		return "COUNT(" + col + ")"
	case aggregate.Avg:
		return fmt.Sprintf("AVG(CAST(%s AS %s))", col, d.DoubleType)
	case aggregate.Sum:
		if a.Out.Type == table.Int {
			return fmt.Sprintf("CAST(SUM(%s) AS %s)", col, d.BigIntType)
		}
		return fmt.Sprintf("SUM(%s)", col)
	case aggregate.Max:
		return "MAX(" + col + ")"
	case aggregate.Min:
		return "MIN(" + col + ")"
	}
	return "NULL"
}
