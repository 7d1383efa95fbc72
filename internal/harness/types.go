package harness

import (
	"maps"
	"slices"

	"github.com/roach88/featsql/internal/feature"
)

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success: every expect clause and
	// assertion matched.
	Pass bool `json:"pass"`

	// Steps holds one entry per query, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// StepResult is the outcome of one query.
type StepResult struct {
	QueryID string `json:"query_id"`
	Type    string `json:"type"`

	Returned int64 `json:"returned"`
	Matched  int64 `json:"matched"`
	Skipped  int64 `json:"skipped"`

	// Error is the runtime error code, empty on success.
	Error string `json:"error,omitempty"`

	// Events is the feature stream the query produced.
	Events []feature.Event `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// step returns the result of the 1-based query n; 0 selects the first.
func (r *Result) step(n int) *StepResult {
	if n == 0 {
		n = 1
	}
	if n > len(r.Steps) {
		return nil
	}
	return &r.Steps[n-1]
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
