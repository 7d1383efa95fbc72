package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/featsql/internal/engine"
	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/mapping"
)

// Scenario defines a conformance test scenario: a database fixture, the
// feature types served over it and a sequence of queries whose feature
// streams are checked.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Provider is a CUE provider directory supplying the feature types and
	// query options. Relative paths are resolved against the scenario file.
	// Exclusive with Types.
	Provider string `yaml:"provider,omitempty"`

	// Types declares the feature types inline, by name.
	Types map[string][]mapping.Rule `yaml:"types,omitempty"`

	// Fixture holds the SQL statements that create and fill the in-memory
	// SQLite database.
	Fixture []string `yaml:"fixture"`

	// Queries run in order against one engine.
	Queries []QueryStep `yaml:"queries"`

	// Assertions validate the feature streams of the queries.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// QueryStep is one feature query.
type QueryStep struct {
	Type         string    `yaml:"type"`
	Limit        int64     `yaml:"limit,omitempty"`
	Offset       int64     `yaml:"offset,omitempty"`
	SortKeys     []SortKey `yaml:"sortKeys,omitempty"`
	CountSkipped bool      `yaml:"countSkipped,omitempty"`

	// Filter is a CQL2-JSON expression written as YAML.
	Filter any `yaml:"filter,omitempty"`

	// Expect validates the outcome. If nil, the query must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// SortKey is an additional sort key of a query.
type SortKey struct {
	Property   string `yaml:"property"`
	Descending bool   `yaml:"descending,omitempty"`
}

// ExpectClause specifies the expected outcome of a query.
type ExpectClause struct {
	// Error is the expected runtime error code (e.g. TYPE_CHECK_FAILED).
	Error string `yaml:"error,omitempty"`

	Returned *int64 `yaml:"returned,omitempty"`
	Matched  *int64 `yaml:"matched,omitempty"`
	Skipped  *int64 `yaml:"skipped,omitempty"`
}

// Assertion validates the feature stream of one query.
type Assertion struct {
	// Type specifies the assertion type:
	// - "feature_count": the query produced Count features
	// - "event_count": the query produced Count events of Kind
	// - "trace_contains": a value event of Path carries Value
	// - "trace_order": the values of Path are exactly Values, in order
	Type string `yaml:"type"`

	// Query is the 1-based index of the query. Zero means the first.
	Query int `yaml:"query,omitempty"`

	Path   string   `yaml:"path,omitempty"`
	Value  string   `yaml:"value,omitempty"`
	Values []string `yaml:"values,omitempty"`
	Kind   string   `yaml:"kind,omitempty"`
	Count  int      `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFeatureCount  = "feature_count"
	AssertEventCount    = "event_count"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Provider != "" && !filepath.IsAbs(scenario.Provider) {
		scenario.Provider = filepath.Join(filepath.Dir(path), scenario.Provider)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Provider != "" && len(s.Types) > 0:
		return fmt.Errorf("provider and types are exclusive")
	case s.Provider == "" && len(s.Types) == 0:
		return fmt.Errorf("provider or types is required")
	}
	if s.Provider != "" {
		if _, err := os.Stat(s.Provider); os.IsNotExist(err) {
			return fmt.Errorf("provider directory not found: %s", s.Provider)
		}
	}
	for name, rules := range s.Types {
		if len(rules) == 0 {
			return fmt.Errorf("types.%s: rules are required", name)
		}
	}

	if len(s.Fixture) == 0 {
		return fmt.Errorf("fixture list is required and must be non-empty")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	for i, q := range s.Queries {
		if q.Type == "" {
			return fmt.Errorf("queries[%d]: type is required", i)
		}
		if q.Limit < 0 || q.Offset < 0 {
			return fmt.Errorf("queries[%d]: limit and offset must be non-negative", i)
		}
		for j, k := range q.SortKeys {
			if k.Property == "" {
				return fmt.Errorf("queries[%d].sortKeys[%d]: property is required", i, j)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Queries)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, queries int) error {
	if a.Query < 0 || a.Query > queries {
		return fmt.Errorf("assertions[%d]: query %d out of range [1, %d]", index, a.Query, queries)
	}

	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFeatureCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for feature_count", index)
		}
	case AssertEventCount:
		if !knownKind(feature.EventKind(a.Kind)) {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertTraceContains:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func knownKind(k feature.EventKind) bool {
	switch k {
	case feature.EventStart, feature.EventEnd,
		feature.EventFeatureStart, feature.EventFeatureEnd,
		feature.EventObjectStart, feature.EventObjectEnd,
		feature.EventArrayStart, feature.EventArrayEnd,
		feature.EventValue:
		return true
	}
	return false
}

// featureTypes returns the inline types in name order.
func (s *Scenario) featureTypes() []engine.FeatureType {
	types := make([]engine.FeatureType, 0, len(s.Types))
	for _, name := range sortedKeys(s.Types) {
		types = append(types, engine.FeatureType{Name: name, Rules: s.Types[name]})
	}
	return types
}
