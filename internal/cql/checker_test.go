package cql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChecker() *TypeChecker {
	return NewTypeChecker(map[string]string{
		"name":     "STRING",
		"floors":   "INTEGER",
		"height":   "FLOAT",
		"active":   "BOOLEAN",
		"built":    "DATE",
		"updated":  "DATETIME",
		"geometry": "GEOMETRY",
		"tags":     "VALUE_ARRAY",
		"parts":    "OBJECT_ARRAY",
	})
}

func TestCheck_ComparisonSameFamily(t *testing.T) {
	tc := testChecker()

	testCases := []struct {
		name string
		expr Expr
	}{
		{"integer vs double", Comparison{Op: Eq, Left: Prop("floors"), Right: Float(2.5)}},
		{"double vs integer property", Comparison{Op: Lt, Left: Prop("height"), Right: Prop("floors")}},
		{"string vs string", Comparison{Op: Neq, Left: Prop("name"), Right: Str("x")}},
		{"boolean equality", Comparison{Op: Eq, Left: Prop("active"), Right: Bool(true)}},
		{"date vs timestamp", Comparison{Op: Gte, Left: Prop("built"), Right: Timestamp("2020-01-01T00:00:00Z")}},
		{"unknown property passes", Comparison{Op: Gt, Left: Prop("nope"), Right: Str("x")}},
		{"unknown second operand passes", Comparison{Op: Gt, Left: Prop("floors"), Right: Prop("nope")}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			typ, err := tc.Check(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, Boolean, typ)
		})
	}
}

func TestCheck_ComparisonDifferentFamilies(t *testing.T) {
	tc := testChecker()

	testCases := []struct {
		name     string
		expr     Expr
		actual   string
		expected []string
	}{
		{
			name:     "string vs integer",
			expr:     Comparison{Op: Eq, Left: Prop("name"), Right: Int(3)},
			actual:   SchemaInteger,
			expected: []string{SchemaString},
		},
		{
			name:     "integer vs boolean",
			expr:     Comparison{Op: Eq, Left: Prop("floors"), Right: Bool(false)},
			actual:   SchemaBoolean,
			expected: []string{SchemaInteger, SchemaFloat},
		},
		{
			name:     "boolean is not ordered",
			expr:     Comparison{Op: Lt, Left: Prop("active"), Right: Bool(true)},
			actual:   SchemaBoolean,
			expected: []string{SchemaInteger, SchemaFloat, SchemaString, SchemaDatetime, SchemaDate},
		},
		{
			name:     "geometry equality",
			expr:     Comparison{Op: Eq, Left: Prop("geometry"), Right: Str("x")},
			actual:   SchemaGeometry,
			expected: []string{SchemaInteger, SchemaFloat, SchemaString, SchemaBoolean, SchemaDatetime, SchemaDate},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.Check(tt.expr)
			require.Error(t, err)

			var ite *IncompatibleTypesError
			require.True(t, errors.As(err, &ite), "expected IncompatibleTypesError, got %T", err)
			assert.Equal(t, tt.actual, ite.ActualSchemaType)
			assert.Equal(t, tt.expected, ite.ExpectedSchemaTypes)
			assert.Equal(t, Text(tt.expr), ite.Expression)
		})
	}
}

func TestCheck_AllComparisonOperatorsRejectMixedFamilies(t *testing.T) {
	tc := testChecker()

	for _, op := range []ComparisonOp{Eq, Neq, Lt, Lte, Gt, Gte} {
		t.Run(string(op), func(t *testing.T) {
			_, err := tc.Check(Comparison{Op: op, Left: Prop("floors"), Right: Str("3")})
			assert.True(t, IsTypeError(err), "operator %s should reject NUMBER vs TEXT", op)

			_, err = tc.Check(Comparison{Op: op, Left: Prop("floors"), Right: Prop("height")})
			assert.NoError(t, err, "operator %s should accept NUMBER vs NUMBER", op)
		})
	}
}

func TestCheck_BetweenOverGeometry(t *testing.T) {
	tc := testChecker()

	expr := Between{Value: Prop("geometry"), Lower: Int(1), Upper: Int(2)}
	_, err := tc.Check(expr)
	require.Error(t, err)

	var ite *IncompatibleTypesError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, SchemaGeometry, ite.ActualSchemaType)
	assert.Equal(t, []string{"NUMBER"}, ite.ExpectedFamilies)
	assert.Equal(t, []string{SchemaInteger, SchemaFloat}, ite.ExpectedSchemaTypes)
	assert.Contains(t, err.Error(), "geometry BETWEEN 1 AND 2")
}

func TestCheck_Like(t *testing.T) {
	tc := testChecker()

	_, err := tc.Check(Like{Value: Prop("name"), Pattern: Str("Main%")})
	assert.NoError(t, err)

	_, err = tc.Check(Like{Value: Prop("floors"), Pattern: Str("1%")})
	assert.True(t, IsTypeError(err))
}

func TestCheck_In(t *testing.T) {
	tc := testChecker()

	_, err := tc.Check(In{Value: Prop("floors"), List: []Expr{Int(1), Int(2), Float(3.5)}})
	assert.NoError(t, err)

	_, err = tc.Check(In{Value: Prop("floors"), List: []Expr{Int(1), Str("two")}})
	var ite *IncompatibleTypesError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, SchemaString, ite.ActualSchemaType)
}

func TestCheck_TemporalSpatialArray(t *testing.T) {
	tc := testChecker()

	ok := []Expr{
		TemporalOp{Op: TAfter, Left: Prop("updated"), Right: Timestamp("2021-01-01T00:00:00Z")},
		TemporalOp{Op: TDuring, Left: Prop("built"), Right: TemporalLiteral{Type: Interval, Value: "2000-01-01", End: OpenBound}},
		SpatialOp{Op: SIntersects, Left: Prop("geometry"), Right: SpatialLiteral{WKT: "POINT (1 2)"}},
		ArrayOp{Op: AContains, Left: Prop("tags"), Right: ArrayLiteral{Elems: []Expr{Str("a")}}},
	}
	for _, e := range ok {
		_, err := tc.Check(e)
		assert.NoError(t, err, Text(e))
	}

	bad := []Expr{
		TemporalOp{Op: TAfter, Left: Prop("name"), Right: Timestamp("2021-01-01T00:00:00Z")},
		SpatialOp{Op: SWithin, Left: Prop("floors"), Right: SpatialLiteral{WKT: "POINT (1 2)"}},
		ArrayOp{Op: AOverlaps, Left: Prop("name"), Right: ArrayLiteral{}},
		SpatialOp{Op: SIntersects, Left: Prop("geometry"), Right: Str("POINT (1 2)")},
	}
	for _, e := range bad {
		_, err := tc.Check(e)
		assert.True(t, IsTypeError(err), Text(e))
	}
}

func TestCheck_CaseiAccenti(t *testing.T) {
	tc := testChecker()

	_, err := tc.Check(Comparison{Op: Eq, Left: Casei{Arg: Prop("name")}, Right: Casei{Arg: Str("MAIN")}})
	assert.NoError(t, err)

	_, err = tc.Check(Comparison{Op: Eq, Left: Accenti{Arg: Prop("floors")}, Right: Str("x")})
	var ite *IncompatibleTypesError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, []string{SchemaString}, ite.ExpectedSchemaTypes)
}

func TestCheck_Interval(t *testing.T) {
	tc := testChecker()

	testCases := []struct {
		name    string
		expr    IntervalExpr
		wantErr bool
	}{
		{"instant properties", IntervalExpr{Start: Prop("updated"), End: Prop("updated")}, false},
		{"date and open", IntervalExpr{Start: Prop("built"), End: TemporalLiteral{Type: Open, Value: OpenBound}}, false},
		{"open and instant", IntervalExpr{Start: TemporalLiteral{Type: Open, Value: OpenBound}, End: Timestamp("2020-01-01T00:00:00Z")}, false},
		{"mixed date and instant", IntervalExpr{Start: Prop("built"), End: Prop("updated")}, true},
		{"string bound", IntervalExpr{Start: Prop("name"), End: Prop("updated")}, true},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			typ, err := tc.Check(tt.expr)
			if tt.wantErr {
				assert.True(t, IsTypeError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Interval, typ)
		})
	}
}

func TestCheck_Functions(t *testing.T) {
	tc := testChecker()

	typ, err := tc.Check(Function{Name: "upper", Args: []Expr{Prop("name")}})
	require.NoError(t, err)
	assert.Equal(t, String, typ)

	typ, err = tc.Check(Function{Name: "DIAMETER2D", Args: []Expr{Prop("geometry")}})
	require.NoError(t, err)
	assert.Equal(t, Double, typ)

	typ, err = tc.Check(Function{Name: "POSITION"})
	require.NoError(t, err)
	assert.Equal(t, Integer, typ)

	typ, err = tc.Check(Function{Name: "ALIKE", Args: []Expr{Prop("name"), Str("Mai%")}})
	require.NoError(t, err)
	assert.Equal(t, Boolean, typ)

	_, err = tc.Check(Comparison{Op: Eq, Left: Function{Name: "LOWER", Args: []Expr{Prop("name")}}, Right: Str("main")})
	assert.NoError(t, err)
}

func TestCheck_FunctionArgumentKind(t *testing.T) {
	tc := testChecker()

	_, err := tc.Check(Function{Name: "UPPER", Args: []Expr{Int(123)}})
	require.Error(t, err)

	var fse *FunctionSignatureError
	require.True(t, errors.As(err, &fse))
	assert.Equal(t, "UPPER", fse.Function)
	assert.Equal(t, 1, fse.Position)
	assert.Equal(t, []string{"Property", "Function", "Casei", "Accenti"}, fse.Expected)
	assert.Equal(t, "ScalarLiteral", fse.Actual)
	assert.Equal(t, "function UPPER: argument 1 must be one of [Property, Function, Casei, Accenti], got ScalarLiteral", err.Error())
}

func TestCheck_FunctionArgumentType(t *testing.T) {
	tc := testChecker()

	_, err := tc.Check(Function{Name: "UPPER", Args: []Expr{Prop("floors")}})
	var fse *FunctionSignatureError
	require.True(t, errors.As(err, &fse))
	assert.Equal(t, 1, fse.Position)
	assert.Equal(t, []string{SchemaString}, fse.Expected)
	assert.Equal(t, SchemaInteger, fse.Actual)
}

func TestCheck_FunctionArity(t *testing.T) {
	tc := testChecker()

	_, err := tc.Check(Function{Name: "LOWER", Args: []Expr{Prop("name"), Prop("name")}})
	var fse *FunctionSignatureError
	require.True(t, errors.As(err, &fse))
	assert.Equal(t, 0, fse.Position)
	assert.Equal(t, "2", fse.Actual)

	_, err = tc.Check(Function{Name: "NOPE"})
	require.True(t, errors.As(err, &fse))
	assert.Equal(t, "unknown function", fse.Actual)
}

func TestCheck_LogicalPropagatesErrors(t *testing.T) {
	tc := testChecker()

	expr := And{Args: []Expr{
		Comparison{Op: Eq, Left: Prop("name"), Right: Str("a")},
		Not{Arg: Or{Args: []Expr{
			IsNull{Arg: Prop("height")},
			Like{Value: Prop("floors"), Pattern: Str("%")},
		}}},
	}}

	_, err := tc.Check(expr)
	var ite *IncompatibleTypesError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, "floors LIKE '%'", ite.Expression)
}

func TestCheck_Parameter(t *testing.T) {
	tc := testChecker()

	p := Parameter{Name: "minFloors", Schema: map[string]any{"type": "integer"}}
	_, err := tc.Check(Comparison{Op: Gte, Left: Prop("floors"), Right: p})
	assert.NoError(t, err)

	s := Parameter{Name: "label", Schema: map[string]any{"type": "string"}}
	_, err = tc.Check(Comparison{Op: Gte, Left: Prop("floors"), Right: s})
	assert.True(t, IsTypeError(err))
}

func TestCheck_ConcurrentUse(t *testing.T) {
	tc := testChecker()
	expr := Comparison{Op: Eq, Left: Prop("floors"), Right: Int(1)}

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := tc.Check(expr)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}

func TestTypeSchemaTypes(t *testing.T) {
	assert.Equal(t, SchemaInteger, Integer.SchemaType())
	assert.Equal(t, SchemaInteger, Long.SchemaType())
	assert.Equal(t, SchemaFloat, Double.SchemaType())
	assert.Equal(t, Unknown, TypeFromSchemaType("OBJECT"))
	assert.Equal(t, List, TypeFromSchemaType("OBJECT_ARRAY"))
	assert.Equal(t, []string{SchemaInteger, SchemaFloat}, FamilyNumber.SchemaTypes())
	assert.Equal(t, "Instant", fmt.Sprint(Instant))
}
