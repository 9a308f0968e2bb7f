package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Type is the semantic type of a column. Every cell of a column holds either
// nil (null) or the Go value listed next to the constant.
type Type uint8

const (
	Text   Type = iota // string
	Int                // int64
	Double             // float64
	Date               // time.Time, UTC midnight
	Bool               // bool
)

// DateLayout is the canonical text form of a Date cell.
const DateLayout = "2006-01-02"

func (t Type) String() string {
	switch t {
	case Text:
		return "text"
	case Int:
		return "int"
	case Double:
		return "double"
	case Date:
		return "date"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Numeric reports whether cells of t can feed numeric aggregates directly.
func (t Type) Numeric() bool { return t == Int || t == Double }

// ParseType resolves the type names accepted in pipeline configuration.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "string":
		return Text, nil
	case "int", "integer", "bigint", "long":
		return Int, nil
	case "double", "float", "real":
		return Double, nil
	case "date":
		return Date, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return Text, fmt.Errorf("unknown column type %q", s)
	}
}

// FormatCell renders a cell in its canonical text form. Nulls render as "".
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(DateLayout)
	case bool:
		return strconv.FormatBool(x)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// ConvertValue normalises a driver or literal value into the cell
// representation of t. Values that cannot represent t become nil; it is used
// when reading rows back from SQL engines, where drivers disagree on the Go
// types they return.
func ConvertValue(v any, t Type) any {
	if v == nil {
		return nil
	}
	switch t {
	case Int:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		case int32:
			return int64(x)
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<63 {
				return int64(x)
			}
			return nil
		}
	case Double:
		switch x := v.(type) {
		case float64:
			return x
		case float32:
			return float64(x)
		case int64:
			return float64(x)
		case int:
			return float64(x)
		case int32:
			return float64(x)
		}
	case Date:
		if x, ok := v.(time.Time); ok {
			return truncateDay(x)
		}
	case Bool:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		}
	case Text:
		if s, ok := v.(string); ok {
			return s
		}
		return FormatCell(v)
	}
	// Fall back to the textual grammar of the target type.
	s := FormatCell(v)
	if s == "" {
		return nil
	}
	c := caster{to: t}
	out, _ := c.cast(s)
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
