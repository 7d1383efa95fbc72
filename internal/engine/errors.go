package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while executing a query.
//
// Runtime errors include:
//   - Type check: the filter does not type-check against the feature type
//   - Unknown type: the request names no configured feature type
//   - Query failed: the backend rejected or aborted a SQL statement
//   - Decode failed: the row stream could not be turned into features
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID identifies the failed execution, empty before one started.
	QueryID string

	// Type is the requested feature type.
	Type string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeTypeCheckFailed indicates the filter failed the type check.
	ErrCodeTypeCheckFailed RuntimeErrorCode = "TYPE_CHECK_FAILED"

	// ErrCodeUnknownType indicates the requested feature type doesn't exist.
	ErrCodeUnknownType RuntimeErrorCode = "UNKNOWN_TYPE"

	// ErrCodeQueryFailed indicates a SQL statement failed.
	ErrCodeQueryFailed RuntimeErrorCode = "QUERY_FAILED"

	// ErrCodeDecodeFailed indicates the row stream could not be decoded.
	ErrCodeDecodeFailed RuntimeErrorCode = "DECODE_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.QueryID != "" {
		return fmt.Sprintf("%s (type=%s, query=%s)", msg, e.Type, e.QueryID)
	}
	if e.Type != "" {
		return fmt.Sprintf("%s (type=%s)", msg, e.Type)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the RuntimeError in err's chain, or "".
func CodeOf(err error) RuntimeErrorCode {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTypeCheckError returns true if the error is a filter type check error.
// Uses errors.As to handle wrapped errors.
func IsTypeCheckError(err error) bool {
	return CodeOf(err) == ErrCodeTypeCheckFailed
}

// IsUnknownTypeError returns true if the error names an unknown feature type.
func IsUnknownTypeError(err error) bool {
	return CodeOf(err) == ErrCodeUnknownType
}

func newRuntimeError(code RuntimeErrorCode, typeName, queryID, message string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: message,
		QueryID: queryID,
		Type:    typeName,
		Err:     err,
	}
}
