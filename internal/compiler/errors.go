package compiler

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Error codes of provider loading and compilation.
const (
	ErrCodeNotFound    = "E005" // provider directory not found
	ErrCodeNoFiles     = "E003" // no CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeInvalid     = "E101" // provider does not match the schema
	ErrCodeNoTypes     = "E102" // no feature types defined
	ErrCodeEmptyType   = "E103" // feature type without rules
)

// CompileError is a provider error with the CUE position that caused it.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// IsCompileError reports whether err is a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// CodeOf returns the code of a *CompileError in err's chain, or "".
func CodeOf(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// formatCUEError extracts position info from CUE errors. An empty field is
// replaced by the path of the first error.
func formatCUEError(code, field string, err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Code: code, Field: field, Message: err.Error()}
	}

	// Return first error with position info
	first := errs[0]
	if field == "" {
		field = strings.Join(first.Path(), ".")
	}
	ce := &CompileError{Code: code, Field: field, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
