package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/featsql/internal/compiler"
	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/engine"
	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/querysql"
	"github.com/roach88/featsql/internal/testutil"
)

// Harness is the test execution engine.
// It runs the queries of a scenario with deterministic query ids.
type Harness struct {
	engine *engine.Engine
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory SQLite database for isolation.
// Query ids are q-1, q-2, ... in query order.
//
// Execution flow:
//  1. Create the in-memory database and load the fixture
//  2. Compile the feature types, from the provider or inline
//  3. Run every query, recording its feature stream
//  4. Check expect clauses and assertions
//
// Run returns an error only when the scenario cannot be set up; query
// failures are results.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := testutil.OpenFixture(ctx, scenario.Fixture...)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	types := scenario.featureTypes()
	ids := testutil.NewSequentialIDs("q")
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []engine.Option{engine.WithQueryIDs(ids), engine.WithDecoderLogger(quiet)}

	if scenario.Provider != "" {
		p, err := compiler.LoadProvider(scenario.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to load provider: %w", err)
		}
		if p.Dialect != (dialect.SQLite{}).Name() {
			return nil, fmt.Errorf("provider dialect %q: scenarios run on sqlite", p.Dialect)
		}
		types = p.Types
		opts = append(p.EngineOptions(), opts...)
	}

	eng, err := engine.New(st, dialect.SQLite{}, types, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{engine: eng}
	result := NewResult()
	for i, q := range scenario.Queries {
		if err := h.executeQuery(ctx, i, q, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeQuery runs one query and checks its expect clause.
func (h *Harness) executeQuery(ctx context.Context, i int, q QueryStep, result *Result) error {
	req, err := q.request()
	if err != nil {
		return fmt.Errorf("queries[%d]: %w", i, err)
	}

	rec := feature.NewRecorder()
	res, err := h.engine.Query(ctx, req, rec)

	step := StepResult{Type: q.Type, Events: rec.Events(), Matched: -1, Skipped: -1}
	if res != nil {
		step.QueryID = res.QueryID
		step.Returned = res.Meta.NumberReturned
		step.Matched = res.Meta.NumberMatched
		step.Skipped = res.Meta.NumberSkipped
	}
	if err != nil {
		step.Error = string(engine.CodeOf(err))
		if step.Error == "" {
			return fmt.Errorf("queries[%d]: %w", i, err)
		}
	}
	result.Steps = append(result.Steps, step)

	for _, msg := range checkExpect(i, q.Expect, step, err) {
		result.AddError(msg)
	}
	return nil
}

// request converts the step into an engine request.
func (q QueryStep) request() (engine.Request, error) {
	req := engine.Request{
		Type:         q.Type,
		Limit:        q.Limit,
		Offset:       q.Offset,
		CountSkipped: q.CountSkipped,
	}
	for _, k := range q.SortKeys {
		req.SortKeys = append(req.SortKeys, querysql.SortKey{Property: k.Property, Descending: k.Descending})
	}
	if q.Filter != nil {
		data, err := json.Marshal(q.Filter)
		if err != nil {
			return req, fmt.Errorf("filter: %w", err)
		}
		req.Filter, err = cql.ParseJSON(data)
		if err != nil {
			return req, fmt.Errorf("filter: %w", err)
		}
	}
	return req, nil
}

// checkExpect compares a query outcome with its expect clause.
func checkExpect(i int, exp *ExpectClause, step StepResult, err error) []string {
	var errs []string
	if exp == nil {
		if err != nil {
			errs = append(errs, fmt.Sprintf("queries[%d]: unexpected error: %v", i, err))
		}
		return errs
	}

	if exp.Error != step.Error {
		errs = append(errs, fmt.Sprintf("queries[%d]: error = %q, expected %q", i, step.Error, exp.Error))
	}
	counters := []struct {
		name string
		want *int64
		got  int64
	}{
		{"returned", exp.Returned, step.Returned},
		{"matched", exp.Matched, step.Matched},
		{"skipped", exp.Skipped, step.Skipped},
	}
	for _, c := range counters {
		if c.want != nil && *c.want != c.got {
			errs = append(errs, fmt.Sprintf("queries[%d]: %s = %d, expected %d", i, c.name, c.got, *c.want))
		}
	}
	return errs
}
