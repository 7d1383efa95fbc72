// Package cql provides the CQL2 filter expression model used by featsql.
//
// The expression tree is a sealed sum type: Expr is implemented only by the
// node types in this package, so consumers (the type checker, the SQL filter
// encoder, the text renderer) use exhaustive type switches and the compiler
// keeps them honest when a node kind is added.
//
// ARCHITECTURE:
//
//	[CQL2-JSON] → ParseJSON → [Expr] → TypeChecker.Check
//	                                 → querysql.FilterEncoder
//	                                 → Text (diagnostics)
//
// The CQL2 text syntax parser is not part of this package. ParseJSON covers
// the JSON encoding so filters can be supplied on the command line and in
// conformance scenarios.
//
// TYPE CHECKING:
//
// Every operator is mapped, through a process-wide read-only table, to one
// or more admissible type families (NUMBER, TEXT, BOOLEAN, INSTANT, TEMPORAL,
// SPATIAL, ARRAY). The first operand picks the families, the remaining
// operands must fall into them. Properties without a known schema type are
// Unknown and pass every check.
//
// Example:
//
//	tc := cql.NewTypeChecker(map[string]string{"height": "FLOAT"})
//	expr := cql.Comparison{Op: cql.Gt, Left: cql.Property{Name: "height"}, Right: cql.Int(10)}
//	typ, err := tc.Check(expr) // Boolean, nil
package cql
