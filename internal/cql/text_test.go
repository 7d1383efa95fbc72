package cql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	testCases := []struct {
		expr Expr
		want string
	}{
		{Comparison{Op: Eq, Left: Prop("name"), Right: Str("O'Brien")}, "name = 'O''Brien'"},
		{Between{Value: Prop("floors"), Lower: Int(1), Upper: Float(2.5)}, "floors BETWEEN 1 AND 2.5"},
		{In{Value: Prop("id"), List: []Expr{Int(1), Int(2)}}, "id IN (1, 2)"},
		{IsNull{Arg: Prop("x")}, "x IS NULL"},
		{Not{Arg: Comparison{Op: Lt, Left: Prop("a"), Right: Bool(false)}}, "NOT (a < FALSE)"},
		{
			And{Args: []Expr{
				Comparison{Op: Eq, Left: Prop("a"), Right: Int(1)},
				Or{Args: []Expr{IsNull{Arg: Prop("b")}, IsNull{Arg: Prop("c")}}},
			}},
			"a = 1 AND (b IS NULL OR c IS NULL)",
		},
		{TemporalOp{Op: TBefore, Left: Prop("t"), Right: Timestamp("2020-01-01T00:00:00Z")}, "T_BEFORE(t, TIMESTAMP('2020-01-01T00:00:00Z'))"},
		{TemporalLiteral{Type: Interval, Value: "2020-01-01", End: OpenBound}, "INTERVAL('2020-01-01', '..')"},
		{Function{Name: "upper", Args: []Expr{Casei{Arg: Prop("n")}}}, "UPPER(CASEI(n))"},
		{Comparison{Op: Gte, Left: Prop("n"), Right: Parameter{Name: "min"}}, "n >= {{min}}"},
		{ArrayOp{Op: AOverlaps, Left: Prop("tags"), Right: ArrayLiteral{Elems: []Expr{Str("a")}}}, "A_OVERLAPS(tags, ('a'))"},
	}

	for _, tt := range testCases {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.expr))
		})
	}
}

func TestProperties(t *testing.T) {
	e := And{Args: []Expr{
		Comparison{Op: Eq, Left: Prop("b"), Right: Int(1)},
		Like{Value: Function{Name: "LOWER", Args: []Expr{Prop("a")}}, Pattern: Str("x")},
		IsNull{Arg: Prop("b")},
	}}

	assert.Equal(t, []string{"b", "a"}, Properties(e))
}
