package mapping

import (
	"errors"
	"fmt"
)

// Derivation error codes (M100-M199)
const (
	ErrNoRules            = "M100" // rule list is empty
	ErrFirstNotTable      = "M101" // first rule must be the main table
	ErrColumnOutsideTable = "M102" // column or table not under a registered table
	ErrDuplicateTable     = "M103" // table path registered twice
	ErrMissingConnector   = "M104" // connector property without its connector column
	ErrInvalidPath        = "M105" // source path syntax
	ErrInvalidFilter      = "M106" // table filter is not valid CQL2-JSON
)

// DerivationError reports a structural inconsistency in the mapping rules of
// a feature type. Derivation errors are configuration errors: they abort
// provider initialization and are never surfaced per request.
type DerivationError struct {
	Code    string `json:"code"`
	Type    string `json:"type"`
	Rule    int    `json:"rule"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *DerivationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s rule %d (%s): %s", e.Code, e.Type, e.Rule, e.Source, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, e.Message)
}

// IsDerivationError reports whether err is a DerivationError.
// Uses errors.As to handle wrapped errors.
func IsDerivationError(err error) bool {
	var de *DerivationError
	return errors.As(err, &de)
}
