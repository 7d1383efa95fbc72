package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result as text: a header line per query followed by
// its trace lines.
//
//	query 1 building id=q-1 returned=2 matched=2 skipped=-1
//	start returned=2 matched=2
//	...
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", name)
	for i, s := range result.Steps {
		fmt.Fprintf(&b, "query %d %s id=%s returned=%d matched=%d skipped=%d",
			i+1, s.Type, s.QueryID, s.Returned, s.Matched, s.Skipped)
		if s.Error != "" {
			b.WriteString(" error=" + s.Error)
		}
		b.WriteString("\n")
		for _, e := range s.Events {
			b.WriteString(e.String() + "\n")
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result))
}
