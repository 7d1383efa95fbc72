package cql

import (
	"fmt"
	"strings"
)

// Operator compatibility tables. Built once at package initialization and
// never mutated afterwards, so a TypeChecker can be shared across goroutines.
var (
	familiesScalar        = []Family{FamilyNumber, FamilyText, FamilyBoolean, FamilyInstant}
	familiesScalarOrdered = []Family{FamilyNumber, FamilyText, FamilyInstant}

	comparisonFamilies = map[ComparisonOp][]Family{
		Eq:  familiesScalar,
		Neq: familiesScalar,
		Lt:  familiesScalarOrdered,
		Lte: familiesScalarOrdered,
		Gt:  familiesScalarOrdered,
		Gte: familiesScalarOrdered,
	}

	inFamilies       = familiesScalar
	likeFamilies     = []Family{FamilyText}
	betweenFamilies  = []Family{FamilyNumber}
	temporalFamilies = []Family{FamilyTemporal}
	spatialFamilies  = []Family{FamilySpatial}
	arrayFamilies    = []Family{FamilyArray}
	wrapperFamilies  = []Family{FamilyText}
)

// TypeChecker verifies operand compatibility of CQL2 expressions against a
// table of property types.
//
// Thread-safety: a TypeChecker is immutable after construction and safe for
// concurrent use.
type TypeChecker struct {
	properties map[string]Type
}

// NewTypeChecker creates a checker from a property name → schema type table
// (STRING, INTEGER, FLOAT, BOOLEAN, DATETIME, DATE, GEOMETRY, VALUE_ARRAY,
// OBJECT_ARRAY). Properties missing from the table are Unknown.
func NewTypeChecker(properties map[string]string) *TypeChecker {
	props := make(map[string]Type, len(properties))
	for name, st := range properties {
		props[name] = TypeFromSchemaType(st)
	}
	return &TypeChecker{properties: props}
}

// PropertyType returns the type of a property, Unknown if it is not known.
func (tc *TypeChecker) PropertyType(name string) Type {
	if t, ok := tc.properties[name]; ok {
		return t
	}
	return Unknown
}

// Check type-checks e and returns its result type.
// Predicates yield Boolean. The first incompatibility aborts the check.
func (tc *TypeChecker) Check(e Expr) (Type, error) {
	if e == nil {
		return Unknown, fmt.Errorf("cannot type-check nil expression")
	}
	return tc.typeOf(e)
}

func (tc *TypeChecker) typeOf(e Expr) (Type, error) {
	switch n := e.(type) {
	case And:
		return tc.logical(n.Args)
	case Or:
		return tc.logical(n.Args)
	case Not:
		if _, err := tc.typeOf(n.Arg); err != nil {
			return Unknown, err
		}
		return Boolean, nil
	case Comparison:
		return tc.predicate(e, comparisonFamilies[n.Op], n.Left, n.Right)
	case Between:
		return tc.predicate(e, betweenFamilies, n.Value, n.Lower, n.Upper)
	case Like:
		return tc.predicate(e, likeFamilies, n.Value, n.Pattern)
	case In:
		return tc.predicate(e, inFamilies, append([]Expr{n.Value}, n.List...)...)
	case IsNull:
		if _, err := tc.typeOf(n.Arg); err != nil {
			return Unknown, err
		}
		return Boolean, nil
	case Casei:
		return tc.wrapper(e, n.Arg)
	case Accenti:
		return tc.wrapper(e, n.Arg)
	case TemporalOp:
		return tc.predicate(e, temporalFamilies, n.Left, n.Right)
	case SpatialOp:
		return tc.predicate(e, spatialFamilies, n.Left, n.Right)
	case ArrayOp:
		return tc.predicate(e, arrayFamilies, n.Left, n.Right)
	case Function:
		return tc.function(n)
	case Property:
		return tc.PropertyType(n.Name), nil
	case IntervalExpr:
		return tc.interval(n)
	case ScalarLiteral:
		return n.Type, nil
	case TemporalLiteral:
		if n.Type == Unknown {
			return Open, nil
		}
		return n.Type, nil
	case SpatialLiteral:
		return Geometry, nil
	case ArrayLiteral:
		for _, el := range n.Elems {
			if _, err := tc.typeOf(el); err != nil {
				return Unknown, err
			}
		}
		return List, nil
	case Parameter:
		return parameterType(n), nil
	default:
		return Unknown, fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (tc *TypeChecker) logical(args []Expr) (Type, error) {
	for _, a := range args {
		if _, err := tc.typeOf(a); err != nil {
			return Unknown, err
		}
	}
	return Boolean, nil
}

func (tc *TypeChecker) predicate(node Expr, families []Family, operands ...Expr) (Type, error) {
	types := make([]Type, len(operands))
	for i, op := range operands {
		t, err := tc.typeOf(op)
		if err != nil {
			return Unknown, err
		}
		types[i] = t
	}
	if err := checkOperands(node, families, types); err != nil {
		return Unknown, err
	}
	return Boolean, nil
}

func (tc *TypeChecker) wrapper(node Expr, arg Expr) (Type, error) {
	t, err := tc.typeOf(arg)
	if err != nil {
		return Unknown, err
	}
	if err := checkOperands(node, wrapperFamilies, []Type{t}); err != nil {
		return Unknown, err
	}
	return String, nil
}

// interval requires both bounds to be Instant or Open, or both LocalDate or
// Open.
func (tc *TypeChecker) interval(n IntervalExpr) (Type, error) {
	start, err := tc.typeOf(n.Start)
	if err != nil {
		return Unknown, err
	}
	end, err := tc.typeOf(n.End)
	if err != nil {
		return Unknown, err
	}
	for _, base := range []Type{Instant, LocalDate} {
		if boundOf(start, base) && boundOf(end, base) {
			return Interval, nil
		}
	}
	actual := start
	if boundOf(start, Instant) || boundOf(start, LocalDate) {
		actual = end
	}
	return Unknown, &IncompatibleTypesError{
		Expression:          Text(n),
		ActualSchemaType:    actual.SchemaType(),
		ExpectedSchemaTypes: []string{SchemaDatetime, SchemaDate, SchemaOpen},
		ExpectedFamilies:    []string{FamilyInstant.Name},
	}
}

func boundOf(t, base Type) bool {
	return t == base || t == Open || t == Unknown
}

// checkOperands applies the family compatibility rule to the operand types
// of node. The first operand decides which of the families apply.
func checkOperands(node Expr, families []Family, types []Type) error {
	if len(types) == 0 || types[0] == Unknown {
		return nil
	}
	first := types[0]

	var allowed []Family
	for _, f := range families {
		if f.Contains(first) {
			allowed = append(allowed, f)
		}
	}
	if len(allowed) == 0 {
		return incompatible(node, first, families)
	}

	for _, t := range types[1:] {
		if t == Unknown || anyContains(allowed, t) {
			continue
		}
		return incompatible(node, t, allowed)
	}
	return nil
}

func incompatible(node Expr, actual Type, expected []Family) *IncompatibleTypesError {
	var schemaTypes, names []string
	for _, f := range expected {
		schemaTypes = appendSchemaTypes(schemaTypes, f.Types)
		names = append(names, f.Name)
	}
	return &IncompatibleTypesError{
		Expression:          Text(node),
		ActualSchemaType:    actual.SchemaType(),
		ExpectedSchemaTypes: schemaTypes,
		ExpectedFamilies:    names,
	}
}

func anyContains(families []Family, t Type) bool {
	for _, f := range families {
		if f.Contains(t) {
			return true
		}
	}
	return false
}

// parameterType derives a type from a JSON-schema-like parameter schema.
func parameterType(p Parameter) Type {
	if p.Schema == nil {
		return Unknown
	}
	if format, ok := p.Schema["format"].(string); ok {
		switch format {
		case "date-time":
			return Instant
		case "date":
			return LocalDate
		}
	}
	typ, _ := p.Schema["type"].(string)
	switch strings.ToLower(typ) {
	case "string":
		return String
	case "integer":
		return Long
	case "number":
		return Double
	case "boolean":
		return Boolean
	case "array":
		return List
	default:
		return Unknown
	}
}
