package cql

import (
	"errors"
	"fmt"
	"strings"
)

// IncompatibleTypesError reports an operand whose type is not admissible for
// its operator. It is a per-request error; it never indicates a defect in
// the schema.
type IncompatibleTypesError struct {
	// Expression is the offending node rendered as CQL2 text.
	Expression string

	// ActualSchemaType is the schema type of the offending operand.
	ActualSchemaType string

	// ExpectedSchemaTypes lists every schema type the operand may have.
	ExpectedSchemaTypes []string

	// ExpectedFamilies names the admissible families (NUMBER, TEXT, ...).
	ExpectedFamilies []string
}

// Error implements the error interface.
func (e *IncompatibleTypesError) Error() string {
	return fmt.Sprintf("incompatible types in expression %q: type %s is not one of [%s]",
		e.Expression, e.ActualSchemaType, strings.Join(e.ExpectedSchemaTypes, ", "))
}

// FunctionSignatureError reports a function call that does not match the
// function's signature.
type FunctionSignatureError struct {
	// Function is the upper-cased function name.
	Function string

	// Position is the 1-based argument position, or 0 for arity and unknown
	// function errors.
	Position int

	// Expected lists the admissible node kinds or schema types.
	Expected []string

	// Actual describes what was found.
	Actual string
}

// Error implements the error interface.
func (e *FunctionSignatureError) Error() string {
	if e.Position == 0 {
		return fmt.Sprintf("function %s: expected %s, got %s",
			e.Function, strings.Join(e.Expected, ", "), e.Actual)
	}
	return fmt.Sprintf("function %s: argument %d must be one of [%s], got %s",
		e.Function, e.Position, strings.Join(e.Expected, ", "), e.Actual)
}

// IsTypeError reports whether err is a type or function signature error.
// Uses errors.As to handle wrapped errors.
func IsTypeError(err error) bool {
	var ite *IncompatibleTypesError
	if errors.As(err, &ite) {
		return true
	}
	var fse *FunctionSignatureError
	return errors.As(err, &fse)
}
