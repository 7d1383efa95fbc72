package cql

// Expr is a node of a CQL2 expression tree.
//
// This is a sealed interface - only types in this package implement it.
// Consumers switch over the concrete node types; see Walk for a generic
// traversal.
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// IDPlaceholder is the property name that denotes the main table primary key.
// A filter of the form In{Property{IDPlaceholder}, ...} is an id filter.
const IDPlaceholder = "_ID_"

// ComparisonOp is a binary scalar comparison operator.
type ComparisonOp string

const (
	Eq  ComparisonOp = "="
	Neq ComparisonOp = "<>"
	Lt  ComparisonOp = "<"
	Lte ComparisonOp = "<="
	Gt  ComparisonOp = ">"
	Gte ComparisonOp = ">="
)

// TemporalOperator is a temporal relation between two instants or intervals.
type TemporalOperator string

const (
	TAfter        TemporalOperator = "T_AFTER"
	TBefore       TemporalOperator = "T_BEFORE"
	TContains     TemporalOperator = "T_CONTAINS"
	TDisjoint     TemporalOperator = "T_DISJOINT"
	TDuring       TemporalOperator = "T_DURING"
	TEquals       TemporalOperator = "T_EQUALS"
	TFinishedBy   TemporalOperator = "T_FINISHEDBY"
	TFinishes     TemporalOperator = "T_FINISHES"
	TIntersects   TemporalOperator = "T_INTERSECTS"
	TMeets        TemporalOperator = "T_MEETS"
	TMetBy        TemporalOperator = "T_METBY"
	TOverlappedBy TemporalOperator = "T_OVERLAPPEDBY"
	TOverlaps     TemporalOperator = "T_OVERLAPS"
	TStartedBy    TemporalOperator = "T_STARTEDBY"
	TStarts       TemporalOperator = "T_STARTS"
)

// SpatialOperator is a spatial relation between two geometries.
type SpatialOperator string

const (
	SIntersects SpatialOperator = "S_INTERSECTS"
	SEquals     SpatialOperator = "S_EQUALS"
	SDisjoint   SpatialOperator = "S_DISJOINT"
	STouches    SpatialOperator = "S_TOUCHES"
	SWithin     SpatialOperator = "S_WITHIN"
	SOverlaps   SpatialOperator = "S_OVERLAPS"
	SCrosses    SpatialOperator = "S_CROSSES"
	SContains   SpatialOperator = "S_CONTAINS"
)

// ArrayOperator is a relation between two arrays.
type ArrayOperator string

const (
	AEquals      ArrayOperator = "A_EQUALS"
	AContains    ArrayOperator = "A_CONTAINS"
	AContainedBy ArrayOperator = "A_CONTAINEDBY"
	AOverlaps    ArrayOperator = "A_OVERLAPS"
)

// And is a conjunction; all Args must hold.
type And struct {
	Args []Expr
}

func (And) exprNode() {}

// Or is a disjunction; at least one of Args must hold.
type Or struct {
	Args []Expr
}

func (Or) exprNode() {}

// Not negates Arg.
type Not struct {
	Arg Expr
}

func (Not) exprNode() {}

// Comparison is Left <Op> Right.
type Comparison struct {
	Op    ComparisonOp
	Left  Expr
	Right Expr
}

func (Comparison) exprNode() {}

// Between is Value BETWEEN Lower AND Upper (inclusive).
type Between struct {
	Value Expr
	Lower Expr
	Upper Expr
}

func (Between) exprNode() {}

// Like is Value LIKE Pattern with % and _ wildcards.
type Like struct {
	Value   Expr
	Pattern Expr
}

func (Like) exprNode() {}

// In is Value IN (List...).
type In struct {
	Value Expr
	List  []Expr
}

func (In) exprNode() {}

// IsNull is Arg IS NULL.
type IsNull struct {
	Arg Expr
}

func (IsNull) exprNode() {}

// Casei makes a text operand case-insensitive.
type Casei struct {
	Arg Expr
}

func (Casei) exprNode() {}

// Accenti makes a text operand accent-insensitive.
type Accenti struct {
	Arg Expr
}

func (Accenti) exprNode() {}

// TemporalOp relates two temporal operands.
type TemporalOp struct {
	Op    TemporalOperator
	Left  Expr
	Right Expr
}

func (TemporalOp) exprNode() {}

// SpatialOp relates two spatial operands.
type SpatialOp struct {
	Op    SpatialOperator
	Left  Expr
	Right Expr
}

func (SpatialOp) exprNode() {}

// ArrayOp relates two array operands.
type ArrayOp struct {
	Op    ArrayOperator
	Left  Expr
	Right Expr
}

func (ArrayOp) exprNode() {}

// Function is a named function call. Names are matched case-insensitively.
type Function struct {
	Name string
	Args []Expr
}

func (Function) exprNode() {}

// Property references a feature property by its dotted path.
type Property struct {
	Name string
}

func (Property) exprNode() {}

// IntervalExpr is a temporal interval whose bounds are expressions, typically
// properties or temporal literals.
type IntervalExpr struct {
	Start Expr
	End   Expr
}

func (IntervalExpr) exprNode() {}

// ScalarLiteral is a string, number or boolean literal.
// Value holds a string, int64, float64 or bool matching Type.
type ScalarLiteral struct {
	Value any
	Type  Type
}

func (ScalarLiteral) exprNode() {}

// TemporalLiteral is an instant, a date, an interval literal or the open
// bound "..". For intervals Value is the start and End the end; either may
// be "..".
type TemporalLiteral struct {
	Type  Type
	Value string
	End   string
}

func (TemporalLiteral) exprNode() {}

// SpatialLiteral is a geometry literal in WKT.
type SpatialLiteral struct {
	WKT string
}

func (SpatialLiteral) exprNode() {}

// ArrayLiteral is a list of literal or expression elements.
type ArrayLiteral struct {
	Elems []Expr
}

func (ArrayLiteral) exprNode() {}

// Parameter is a named placeholder whose value is supplied at execution.
type Parameter struct {
	Name   string
	Schema map[string]any
}

func (Parameter) exprNode() {}

// OpenBound is the ".." marker of an open interval end.
const OpenBound = ".."

// Str returns a string literal.
func Str(s string) ScalarLiteral { return ScalarLiteral{Value: s, Type: String} }

// Int returns an integer literal.
func Int(n int64) ScalarLiteral { return ScalarLiteral{Value: n, Type: Long} }

// Float returns a floating point literal.
func Float(f float64) ScalarLiteral { return ScalarLiteral{Value: f, Type: Double} }

// Bool returns a boolean literal.
func Bool(b bool) ScalarLiteral { return ScalarLiteral{Value: b, Type: Boolean} }

// Timestamp returns an instant literal.
func Timestamp(s string) TemporalLiteral { return TemporalLiteral{Type: Instant, Value: s} }

// Date returns a date literal.
func Date(s string) TemporalLiteral { return TemporalLiteral{Type: LocalDate, Value: s} }

// Prop returns a property reference.
func Prop(name string) Property { return Property{Name: name} }

// Kind classifies a node for function signature checks.
type Kind string

const (
	KindProperty        Kind = "Property"
	KindFunction        Kind = "Function"
	KindCasei           Kind = "Casei"
	KindAccenti         Kind = "Accenti"
	KindScalarLiteral   Kind = "ScalarLiteral"
	KindTemporalLiteral Kind = "TemporalLiteral"
	KindSpatialLiteral  Kind = "SpatialLiteral"
	KindArrayLiteral    Kind = "ArrayLiteral"
	KindInterval        Kind = "Interval"
	KindParameter       Kind = "Parameter"
	KindPredicate       Kind = "Predicate"
)

// KindOf returns the signature kind of e.
func KindOf(e Expr) Kind {
	switch e.(type) {
	case Property:
		return KindProperty
	case Function:
		return KindFunction
	case Casei:
		return KindCasei
	case Accenti:
		return KindAccenti
	case ScalarLiteral:
		return KindScalarLiteral
	case TemporalLiteral:
		return KindTemporalLiteral
	case SpatialLiteral:
		return KindSpatialLiteral
	case ArrayLiteral:
		return KindArrayLiteral
	case IntervalExpr:
		return KindInterval
	case Parameter:
		return KindParameter
	default:
		return KindPredicate
	}
}
