package querysql

import (
	"fmt"

	"github.com/roach88/featsql/internal/cql"
)

// temporalConditions expands a temporal relation into comparisons of the
// operand bounds: %[1]s left start, %[2]s left end, %[3]s right start,
// %[4]s right end. Instants have equal start and end.
var temporalConditions = map[cql.TemporalOperator]string{
	cql.TAfter:        "%[1]s > %[4]s",
	cql.TBefore:       "%[2]s < %[3]s",
	cql.TContains:     "(%[1]s < %[3]s AND %[2]s > %[4]s)",
	cql.TDisjoint:     "NOT (%[1]s <= %[4]s AND %[2]s >= %[3]s)",
	cql.TDuring:       "(%[1]s > %[3]s AND %[2]s < %[4]s)",
	cql.TEquals:       "(%[1]s = %[3]s AND %[2]s = %[4]s)",
	cql.TFinishedBy:   "(%[1]s < %[3]s AND %[2]s = %[4]s)",
	cql.TFinishes:     "(%[1]s > %[3]s AND %[2]s = %[4]s)",
	cql.TIntersects:   "(%[1]s <= %[4]s AND %[2]s >= %[3]s)",
	cql.TMeets:        "%[2]s = %[3]s",
	cql.TMetBy:        "%[1]s = %[4]s",
	cql.TOverlappedBy: "(%[1]s > %[3]s AND %[1]s < %[4]s AND %[2]s > %[4]s)",
	cql.TOverlaps:     "(%[1]s < %[3]s AND %[2]s > %[3]s AND %[2]s < %[4]s)",
	cql.TStartedBy:    "(%[1]s = %[3]s AND %[2]s > %[4]s)",
	cql.TStarts:       "(%[1]s = %[3]s AND %[2]s < %[4]s)",
}

func (enc *encoding) temporal(n cql.TemporalOp, resolve resolver) (string, error) {
	format, ok := temporalConditions[n.Op]
	if !ok {
		return "", enc.fail(n, "unsupported temporal operator %s", n.Op)
	}
	ls, le, err := enc.temporalBounds(n.Left, resolve)
	if err != nil {
		return "", err
	}
	rs, re, err := enc.temporalBounds(n.Right, resolve)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(format, ls, le, rs, re), nil
}

// temporalBounds returns the start and end of a temporal operand. Open
// interval ends become the dialect's infinite timestamps.
func (enc *encoding) temporalBounds(e cql.Expr, resolve resolver) (string, string, error) {
	switch n := e.(type) {
	case cql.TemporalLiteral:
		switch n.Type {
		case cql.Interval:
			return enc.boundLiteral(n.Value, true), enc.boundLiteral(n.End, false), nil
		case cql.Open:
			return "", "", enc.fail(e, "open bound outside an interval")
		}
		v, err := enc.render(n, resolve)
		return v, v, err
	case cql.IntervalExpr:
		start, err := enc.intervalBound(n.Start, resolve, true)
		if err != nil {
			return "", "", err
		}
		end, err := enc.intervalBound(n.End, resolve, false)
		if err != nil {
			return "", "", err
		}
		return start, end, nil
	default:
		v, err := enc.render(e, resolve)
		return v, v, err
	}
}

func (enc *encoding) intervalBound(e cql.Expr, resolve resolver, start bool) (string, error) {
	if lit, ok := e.(cql.TemporalLiteral); ok && lit.Type == cql.Open {
		return enc.d.InfiniteTimestamp(start), nil
	}
	return enc.render(e, resolve)
}

func (enc *encoding) boundLiteral(v string, start bool) string {
	switch {
	case v == cql.OpenBound || v == "":
		return enc.d.InfiniteTimestamp(start)
	case len(v) == len("2006-01-02"):
		return enc.d.DateLiteral(v)
	default:
		return enc.d.TimestampLiteral(v)
	}
}
