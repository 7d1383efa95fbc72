package cql

import (
	"fmt"
	"strconv"
	"strings"
)

// Text renders e in CQL2 text syntax.
// The output is used for diagnostics and log lines, not for round-tripping.
func Text(e Expr) string {
	var b strings.Builder
	writeText(&b, e)
	return b.String()
}

func writeText(b *strings.Builder, e Expr) {
	switch n := e.(type) {
	case nil:
		b.WriteString("NULL")
	case And:
		writeJoined(b, n.Args, " AND ", true)
	case Or:
		writeJoined(b, n.Args, " OR ", true)
	case Not:
		b.WriteString("NOT (")
		writeText(b, n.Arg)
		b.WriteString(")")
	case Comparison:
		writeText(b, n.Left)
		fmt.Fprintf(b, " %s ", n.Op)
		writeText(b, n.Right)
	case Between:
		writeText(b, n.Value)
		b.WriteString(" BETWEEN ")
		writeText(b, n.Lower)
		b.WriteString(" AND ")
		writeText(b, n.Upper)
	case Like:
		writeText(b, n.Value)
		b.WriteString(" LIKE ")
		writeText(b, n.Pattern)
	case In:
		writeText(b, n.Value)
		b.WriteString(" IN (")
		writeJoined(b, n.List, ", ", false)
		b.WriteString(")")
	case IsNull:
		writeText(b, n.Arg)
		b.WriteString(" IS NULL")
	case Casei:
		writeCall(b, "CASEI", n.Arg)
	case Accenti:
		writeCall(b, "ACCENTI", n.Arg)
	case TemporalOp:
		writeCall(b, string(n.Op), n.Left, n.Right)
	case SpatialOp:
		writeCall(b, string(n.Op), n.Left, n.Right)
	case ArrayOp:
		writeCall(b, string(n.Op), n.Left, n.Right)
	case Function:
		writeCall(b, strings.ToUpper(n.Name), n.Args...)
	case Property:
		b.WriteString(n.Name)
	case IntervalExpr:
		writeCall(b, "INTERVAL", n.Start, n.End)
	case ScalarLiteral:
		b.WriteString(scalarText(n))
	case TemporalLiteral:
		b.WriteString(temporalText(n))
	case SpatialLiteral:
		b.WriteString(n.WKT)
	case ArrayLiteral:
		b.WriteString("(")
		writeJoined(b, n.Elems, ", ", false)
		b.WriteString(")")
	case Parameter:
		b.WriteString("{{" + n.Name + "}}")
	default:
		fmt.Fprintf(b, "<%T>", e)
	}
}

func writeJoined(b *strings.Builder, args []Expr, sep string, parens bool) {
	for i, a := range args {
		if i > 0 {
			b.WriteString(sep)
		}
		nested := parens && isLogical(a)
		if nested {
			b.WriteString("(")
		}
		writeText(b, a)
		if nested {
			b.WriteString(")")
		}
	}
}

func writeCall(b *strings.Builder, name string, args ...Expr) {
	b.WriteString(name)
	b.WriteString("(")
	writeJoined(b, args, ", ", false)
	b.WriteString(")")
}

func isLogical(e Expr) bool {
	switch e.(type) {
	case And, Or:
		return true
	}
	return false
}

func scalarText(n ScalarLiteral) string {
	switch v := n.Value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func temporalText(n TemporalLiteral) string {
	switch n.Type {
	case Instant:
		return "TIMESTAMP('" + n.Value + "')"
	case LocalDate:
		return "DATE('" + n.Value + "')"
	case Interval:
		return "INTERVAL('" + n.Value + "', '" + n.End + "')"
	default:
		return "'" + OpenBound + "'"
	}
}
