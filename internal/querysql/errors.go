package querysql

import (
	"errors"
	"fmt"
)

// EncodeError reports a filter expression that has no SQL rendering:
// unknown properties, unbound parameters, unsupported functions or
// operands that cannot be combined in one predicate.
type EncodeError struct {
	// Expression is the offending node rendered as CQL2 text.
	Expression string

	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *EncodeError) Error() string {
	return fmt.Sprintf("cannot encode %q: %s", e.Expression, e.Message)
}

// IsEncodeError reports whether err is an *EncodeError.
// Uses errors.As to handle wrapped errors.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}
