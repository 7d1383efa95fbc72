package decoder

import (
	"errors"
	"fmt"
)

// GeometryError reports a geometry value that cannot be decoded. It aborts
// the stream of the current query execution.
type GeometryError struct {
	// Path is the target path of the geometry column.
	Path string

	Err error
}

// Error implements the error interface.
func (e *GeometryError) Error() string {
	return fmt.Sprintf("decode geometry %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *GeometryError) Unwrap() error {
	return e.Err
}

// IsGeometryError reports whether err is a *GeometryError.
// Uses errors.As to handle wrapped errors.
func IsGeometryError(err error) bool {
	var ge *GeometryError
	return errors.As(err, &ge)
}
