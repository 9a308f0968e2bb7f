// Package sqlgen renders the SQL the aggregate engine needs (scratch table
// DDL, parameterised inserts and the group-by query) for a given dialect.
//
// Identifiers are always quoted; values are always bound as parameters.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/RobertDonnan/ufo-notebook/internal/table"
)

// Dialect captures the differences between backends that matter here.
type Dialect struct {
	Name string

	// QuoteIdent quotes a single identifier.
	QuoteIdent func(string) string

	// Placeholder returns the bind marker for the i-th (0-based) parameter.
	Placeholder func(i int) string

	// MapType maps a column type to the backend's column type.
	MapType func(table.Type) string

	// DoubleType and BigIntType are used in CAST expressions.
	DoubleType string
	BigIntType string

	// NullsLast is appended to ORDER BY terms when the backend supports it.
	NullsLast bool

	// MaxParams bounds bind parameters per statement; 0 means unlimited.
	MaxParams int
}

// DoubleQuote quotes with ANSI double quotes.
func DoubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// Backtick quotes MySQL style.
func Backtick(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// Bracket quotes SQL Server style.
func Bracket(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// DollarN is the Postgres "$1" placeholder style.
func DollarN(i int) string { return fmt.Sprintf("$%d", i+1) }

// AtPN is the SQL Server "@p1" placeholder style.
func AtPN(i int) string { return fmt.Sprintf("@p%d", i+1) }

// QuoteFQN quotes each dot-separated segment of a table name.
func (d Dialect) QuoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}
