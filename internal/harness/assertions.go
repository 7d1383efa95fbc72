package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/featsql/internal/feature"
)

// AssertionError is returned when an assertion fails.
// It includes the query's trace to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Query    int             // 1-based query index
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Trace    []feature.Event // Query trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (query %d)\n", e.Type, e.Query)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks all assertions and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	n := max(a.Query, 1)
	step := result.step(n)
	if step == nil {
		return &AssertionError{
			Type:     a.Type,
			Query:    n,
			Expected: fmt.Sprintf("query %d to exist", n),
			Actual:   fmt.Sprintf("%d queries ran", len(result.Steps)),
		}
	}

	switch a.Type {
	case AssertFeatureCount:
		return assertCount(n, step.Events, a.Type, feature.EventFeatureStart, a.Count)
	case AssertEventCount:
		return assertCount(n, step.Events, a.Type, feature.EventKind(a.Kind), a.Count)
	case AssertTraceContains:
		return assertTraceContains(n, step.Events, a)
	case AssertTraceOrder:
		return assertTraceOrder(n, step.Events, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertCount checks the number of events of one kind.
func assertCount(n int, trace []feature.Event, typ string, kind feature.EventKind, want int) error {
	got := 0
	for _, e := range trace {
		if e.Kind == kind {
			got++
		}
	}
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Query:    n,
		Expected: fmt.Sprintf("%d %s events", want, kind),
		Actual:   fmt.Sprintf("%d %s events", got, kind),
		Trace:    trace,
	}
}

// assertTraceContains checks that some value event of the path carries the
// value.
func assertTraceContains(n int, trace []feature.Event, a Assertion) error {
	if slices.Contains(pathValues(trace, a.Path), a.Value) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Query:    n,
		Expected: fmt.Sprintf("value %q at %s", a.Value, a.Path),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks the complete sequence of values of the path.
func assertTraceOrder(n int, trace []feature.Event, a Assertion) error {
	got := pathValues(trace, a.Path)
	if slices.Equal(got, a.Values) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Query:    n,
		Expected: fmt.Sprintf("%s values %q", a.Path, a.Values),
		Actual:   fmt.Sprintf("%s values %q", a.Path, got),
		Trace:    trace,
	}
}

// pathValues returns the values of all value events of path, in order.
func pathValues(trace []feature.Event, path string) []string {
	var values []string
	for _, e := range trace {
		if e.Kind == feature.EventValue && e.Context.PathString() == path {
			values = append(values, e.Context.Value)
		}
	}
	return values
}
