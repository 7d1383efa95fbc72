package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/featsql/internal/store"
)

const providerDir = "../compiler/testdata/building"

var buildingFixture = []string{
	"CREATE TABLE building (id INTEGER PRIMARY KEY, name TEXT, geom TEXT, built TEXT)",
	"CREATE TABLE part (pid INTEGER PRIMARY KEY, id INTEGER, building_id INTEGER, floors INTEGER)",
	"CREATE TABLE room (id INTEGER PRIMARY KEY, part_id INTEGER, label TEXT)",
	"CREATE TABLE tag (id INTEGER PRIMARY KEY, building_id INTEGER, value TEXT)",
	"INSERT INTO building VALUES (1, 'A', 'POINT (7.5 51.2)', '2020-01-01'), (2, 'B', NULL, NULL)",
	"INSERT INTO part VALUES (10, 1, 1, 3), (11, 2, 1, 2)",
	"INSERT INTO room VALUES (100, 10, 'Kitchen'), (101, 10, 'Hall'), (102, 11, 'Attic')",
	"INSERT INTO tag VALUES (5, 1, 'old'), (6, 1, 'red'), (7, 2, 'new')",
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// buildingProvider writes a SQLite database and a provider pointing at it.
func buildingProvider(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "building.db")

	st, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Exec(context.Background(), buildingFixture...))
	require.NoError(t, st.Close())

	src, err := os.ReadFile(filepath.Join(providerDir, "provider.cue"))
	require.NoError(t, err)
	cue := strings.Replace(string(src), `"file:building.db"`, fmt.Sprintf("%q", dbPath), 1)

	providerPath := filepath.Join(dir, "provider")
	require.NoError(t, os.MkdirAll(providerPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(providerPath, "provider.cue"), []byte(cue), 0o644))
	return providerPath
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "featsql", cmd.Use)
	assert.Contains(t, cmd.Long, "CQL2")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"derive", "check", "inspect", "query", "test"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "inspect", providerDir, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestDerive(t *testing.T) {
	out, err := execute(t, "derive", providerDir, "--limit", "5")
	require.NoError(t, err)

	for _, want := range []string{"-- building: meta", "-- building: building", "-- building: part", "-- building: room", "-- building: tag"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "FROM building A")
}

func TestDerive_JSON(t *testing.T) {
	out, err := execute(t, "derive", providerDir, "--format", "json", "--sort=-name")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []DerivedPlan `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "building", resp.Data[0].Type)
	assert.Contains(t, resp.Data[0].Meta, "DESC")
	assert.Len(t, resp.Data[0].Values, 4)
	assert.Equal(t, "part", resp.Data[0].Values[1].Table)
}

func TestDerive_Errors(t *testing.T) {
	out, err := execute(t, "derive", providerDir, "--filter", `{"op":"s_intersects","args":[{"property":"name"},{"bbox":[0,0,1,1]}]}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "TYPE_CHECK_FAILED")

	out, err = execute(t, "derive", providerDir, "--type", "parcel")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "UNKNOWN_TYPE")

	_, err = execute(t, "derive", providerDir, "--limit=-1")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err = execute(t, "derive", "/nonexistent/provider")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}

func TestCheck(t *testing.T) {
	out, err := execute(t, "check", providerDir, "--filter", `{"op":"like","args":[{"property":"parts.rooms.label"},"K%"]}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok building: "), out)

	filterFile := filepath.Join(t.TempDir(), "filter.json")
	require.NoError(t, os.WriteFile(filterFile, []byte(`{"op":">","args":[{"property":"parts.floors"},2]}`), 0o644))
	out, err = execute(t, "check", providerDir, "--filter", "@"+filterFile, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "building", resp.Data.Type)
}

func TestCheck_Rejected(t *testing.T) {
	out, err := execute(t, "check", providerDir, "--filter", `{"property":"name"}`, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "TYPE_CHECK_FAILED", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "not a predicate")
}

func TestCheck_BadFilter(t *testing.T) {
	out, err := execute(t, "check", providerDir, "--filter", `{"op":`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeBadFilter)

	_, err = execute(t, "check", providerDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"filter" not set`)
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", providerDir)
	require.NoError(t, err)
	assert.Contains(t, out, "building: tables")
	assert.Contains(t, out, "building: columns")
	assert.Contains(t, out, "parts.rooms.label")
	assert.Contains(t, out, "building.id = part.building_id")
}

func TestInspect_JSON(t *testing.T) {
	out, err := execute(t, "inspect", providerDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []TypeInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)

	info := resp.Data[0]
	require.Len(t, info.Tables, 4)
	assert.Equal(t, "building", info.Tables[0].Name)
	assert.Equal(t, -1, info.Tables[0].Parent)
	assert.Equal(t, "pid", info.Tables[1].SortKey)
	assert.Equal(t, "STRING", info.Properties["name"])
}

func TestQuery(t *testing.T) {
	provider := buildingProvider(t)

	out, err := execute(t, "query", provider)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "start returned=2 matched=2\n"), out)
	assert.Contains(t, out, `value parts.rooms.label [0 0] = "Kitchen" (STRING)`)
	assert.Equal(t, 2, strings.Count(out, "featureStart building"))
	assert.True(t, strings.HasSuffix(out, "end\n"))
}

func TestQuery_Paging(t *testing.T) {
	provider := buildingProvider(t)

	out, err := execute(t, "query", provider, "--limit", "1", "--offset", "1", "--count-skipped", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status  string `json:"status"`
		QueryID string `json:"query_id"`
		Data    struct {
			Returned int64            `json:"returned"`
			Matched  int64            `json:"matched"`
			Skipped  int64            `json:"skipped"`
			Events   []map[string]any `json:"events"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.QueryID)
	assert.Equal(t, int64(1), resp.Data.Returned)
	assert.Equal(t, int64(2), resp.Data.Matched)
	assert.Equal(t, int64(1), resp.Data.Skipped)
	require.NotEmpty(t, resp.Data.Events)
	assert.Equal(t, "start", resp.Data.Events[0]["kind"])
}

func TestQuery_Fingerprint(t *testing.T) {
	provider := buildingProvider(t)

	first, err := execute(t, "query", provider, "--fingerprint", "--sort=-name")
	require.NoError(t, err)
	second, err := execute(t, "query", provider, "--fingerprint", "--sort=-name")
	require.NoError(t, err)

	assert.Contains(t, first, "fingerprint ")
	assert.Equal(t, first, second)
}

func TestQuery_Errors(t *testing.T) {
	provider := buildingProvider(t)

	out, err := execute(t, "query", provider, "--filter", `{"property":"name"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "TYPE_CHECK_FAILED")

	out, err = execute(t, "query", provider, "--dsn", filepath.Join(t.TempDir(), "missing", "x.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnreachable)

	_, err = execute(t, "query", provider, "--type", "parcel")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestTest(t *testing.T) {
	out, err := execute(t, "test", "../../testdata/scenarios")
	require.NoError(t, err)
	assert.Contains(t, out, "building_paging")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")

	out, err = execute(t, "test", "../../testdata/scenarios", "--filter", "orders_*", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "orders_inline", resp.Data.Scenarios[0].Name)
	assert.Equal(t, 2, resp.Data.Scenarios[0].Queries)
}

const inlineScenario = `name: tags
description: tags
types:
  tag:
    - {source: /tag, target: "", type: FEATURE}
    - {source: /tag/id, target: id, type: INTEGER, role: ID}
    - {source: /tag/value, target: value, type: STRING}
fixture:
  - CREATE TABLE tag (id INTEGER PRIMARY KEY, value TEXT)
  - INSERT INTO tag VALUES (1, 'old'), (2, 'new')
queries:
  - type: tag
    limit: 5
assertions:
  - type: feature_count
    count: 2
`

func TestTest_Golden(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.yaml"), []byte(inlineScenario), 0o644))

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "updated")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "tags.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), "query 1 tag id=q-1 returned=2 matched=-1 skipped=-1")
	assert.Contains(t, string(golden), `value value = "new" (STRING)`)

	out, err = execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "match")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "tags.golden"), []byte("stale\n"), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTest_Errors(t *testing.T) {
	out, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "not found")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: x\n"), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "failed to load scenario")

	out, err = execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
