package querysql

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/mapping"
)

func buildingRules() []mapping.Rule {
	return []mapping.Rule{
		{Source: "/building", Type: mapping.TypeFeature},
		{Source: "/building/id", Target: "id", Type: "INTEGER", Role: mapping.RoleID},
		{Source: "/building/name", Target: "name", Type: "STRING"},
		{Source: "/building/geom", Target: "geometry", Type: "GEOMETRY", Role: mapping.RolePrimaryGeometry},
		{Source: "/building/built", Target: "built", Type: "DATE"},
		{Source: "/building/[id=building_id]part{sortKey=pid}", Target: "parts", Type: mapping.TypeObjectArray},
		{Source: "/building/[id=building_id]part{sortKey=pid}/floors", Target: "parts.floors", Type: "INTEGER"},
		{Source: "/building/[id=building_id]part{sortKey=pid}/[pid=part_id]room", Target: "parts.rooms", Type: mapping.TypeObjectArray},
		{Source: "/building/[id=building_id]part{sortKey=pid}/[pid=part_id]room/label", Target: "parts.rooms.label", Type: "STRING"},
		{Source: "/building/[id=building_id]tag", Target: "tags", Type: mapping.TypeValueArray},
		{Source: "/building/[id=building_id]tag/value", Target: "tags", Type: "STRING"},
	}
}

func testMapping(t *testing.T) *mapping.SqlQueryMapping {
	t.Helper()
	m, err := mapping.Derive("building", buildingRules(), mapping.Options{})
	require.NoError(t, err)
	return m
}

// requireValidPostgres parses sql with the PostgreSQL parser.
func requireValidPostgres(t *testing.T, sql string) {
	t.Helper()
	_, err := pg_query.Parse(sql)
	require.NoError(t, err, "invalid PostgreSQL: %s", sql)
}

func TestEncode(t *testing.T) {
	m := testMapping(t)
	enc := NewFilterEncoder(dialect.Postgres{})

	testCases := []struct {
		name string
		expr cql.Expr
		want string
	}{
		{
			name: "main table comparison",
			expr: cql.Comparison{Op: cql.Eq, Left: cql.Prop("name"), Right: cql.Str("x")},
			want: "A.name = 'x'",
		},
		{
			name: "joined table comparison",
			expr: cql.Comparison{Op: cql.Gt, Left: cql.Prop("parts.floors"), Right: cql.Int(2)},
			want: "A.id IN (SELECT AA.id FROM building AA JOIN part AB ON (AA.id=AB.building_id) WHERE AB.floors > 2)",
		},
		{
			name: "nested joined table",
			expr: cql.Like{Value: cql.Prop("parts.rooms.label"), Pattern: cql.Str("K%")},
			want: "A.id IN (SELECT AA.id FROM building AA JOIN part AB ON (AA.id=AB.building_id) JOIN room AC ON (AB.pid=AC.part_id) WHERE AC.label LIKE 'K%')",
		},
		{
			name: "or over tables",
			expr: cql.Or{Args: []cql.Expr{
				cql.Comparison{Op: cql.Eq, Left: cql.Prop("name"), Right: cql.Str("a")},
				cql.Comparison{Op: cql.Gt, Left: cql.Prop("parts.floors"), Right: cql.Int(2)},
			}},
			want: "(A.name = 'a' OR A.id IN (SELECT AA.id FROM building AA JOIN part AB ON (AA.id=AB.building_id) WHERE AB.floors > 2))",
		},
		{
			name: "not",
			expr: cql.Not{Arg: cql.IsNull{Arg: cql.Prop("name")}},
			want: "NOT (A.name IS NULL)",
		},
		{
			name: "id filter",
			expr: cql.In{Value: cql.Prop(cql.IDPlaceholder), List: []cql.Expr{cql.Str("1"), cql.Int(2)}},
			want: "CAST(A.id AS VARCHAR) IN ('1', '2')",
		},
		{
			name: "between",
			expr: cql.Between{Value: cql.Prop("id"), Lower: cql.Int(1), Upper: cql.Int(9)},
			want: "A.id BETWEEN 1 AND 9",
		},
		{
			name: "case insensitive like",
			expr: cql.Like{Value: cql.Casei{Arg: cql.Prop("name")}, Pattern: cql.Casei{Arg: cql.Str("ab%")}},
			want: "LOWER(A.name) LIKE LOWER('ab%')",
		},
		{
			name: "accent insensitive",
			expr: cql.Comparison{Op: cql.Eq, Left: cql.Accenti{Arg: cql.Prop("name")}, Right: cql.Accenti{Arg: cql.Str("café")}},
			want: "unaccent(A.name) = unaccent('café')",
		},
		{
			name: "upper",
			expr: cql.Comparison{Op: cql.Eq, Left: cql.Function{Name: "upper", Args: []cql.Expr{cql.Prop("name")}}, Right: cql.Str("X")},
			want: "UPPER(A.name) = 'X'",
		},
		{
			name: "temporal after",
			expr: cql.TemporalOp{Op: cql.TAfter, Left: cql.Prop("built"), Right: cql.Date("2020-01-01")},
			want: "A.built > DATE '2020-01-01'",
		},
		{
			name: "temporal open interval",
			expr: cql.TemporalOp{Op: cql.TIntersects, Left: cql.Prop("built"), Right: cql.TemporalLiteral{Type: cql.Interval, Value: "2020-01-01", End: cql.OpenBound}},
			want: "(A.built <= TIMESTAMP 'infinity' AND A.built >= DATE '2020-01-01')",
		},
		{
			name: "temporal interval expression",
			expr: cql.TemporalOp{Op: cql.TDuring,
				Left:  cql.IntervalExpr{Start: cql.Prop("built"), End: cql.TemporalLiteral{Type: cql.Open, Value: cql.OpenBound}},
				Right: cql.TemporalLiteral{Type: cql.Interval, Value: "2000-01-01T00:00:00Z", End: "2030-01-01T00:00:00Z"}},
			want: "(A.built > TIMESTAMP '2000-01-01T00:00:00Z' AND TIMESTAMP 'infinity' < TIMESTAMP '2030-01-01T00:00:00Z')",
		},
		{
			name: "spatial",
			expr: cql.SpatialOp{Op: cql.SIntersects, Left: cql.Prop("geometry"), Right: cql.SpatialLiteral{WKT: "POINT (1 2)"}},
			want: "ST_Intersects(A.geom, ST_GeomFromText('POINT (1 2)', 4326))",
		},
		{
			name: "array contains",
			expr: cql.ArrayOp{Op: cql.AContains, Left: cql.Prop("tags"), Right: cql.ArrayLiteral{Elems: []cql.Expr{cql.Str("a"), cql.Str("b")}}},
			want: "A.id IN (SELECT AA.id FROM building AA JOIN tag AB ON (AA.id=AB.building_id) WHERE AB.value IS NOT NULL GROUP BY AA.id HAVING COUNT(DISTINCT CASE WHEN AB.value IN ('a', 'b') THEN AB.value END) = 2)",
		},
		{
			name: "array contained by with literal first",
			expr: cql.ArrayOp{Op: cql.AContains, Left: cql.ArrayLiteral{Elems: []cql.Expr{cql.Str("a")}}, Right: cql.Prop("tags")},
			want: "A.id IN (SELECT AA.id FROM building AA JOIN tag AB ON (AA.id=AB.building_id) WHERE AB.value IS NOT NULL GROUP BY AA.id HAVING SUM(CASE WHEN AB.value IN ('a') THEN 0 ELSE 1 END) = 0)",
		},
		{
			name: "array overlaps",
			expr: cql.ArrayOp{Op: cql.AOverlaps, Left: cql.Prop("tags"), Right: cql.ArrayLiteral{Elems: []cql.Expr{cql.Str("a")}}},
			want: "A.id IN (SELECT AA.id FROM building AA JOIN tag AB ON (AA.id=AB.building_id) WHERE AB.value IS NOT NULL GROUP BY AA.id HAVING SUM(CASE WHEN AB.value IN ('a') THEN 1 ELSE 0 END) > 0)",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			sql, err := enc.Encode(tt.expr, m, "A")
			require.NoError(t, err)
			assert.Equal(t, tt.want, sql)
			requireValidPostgres(t, "SELECT 1 FROM building A WHERE "+sql)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	m := testMapping(t)
	enc := NewFilterEncoder(dialect.Postgres{})

	testCases := []struct {
		name string
		expr cql.Expr
	}{
		{"unknown property", cql.Comparison{Op: cql.Eq, Left: cql.Prop("height"), Right: cql.Int(1)}},
		{"unbound parameter", cql.Comparison{Op: cql.Eq, Left: cql.Prop("name"), Right: cql.Parameter{Name: "p"}}},
		{"unsupported function", cql.Comparison{Op: cql.Eq, Left: cql.Function{Name: "POSITION"}, Right: cql.Int(1)}},
		{"sibling tables", cql.And{Args: []cql.Expr{cql.Comparison{Op: cql.Eq,
			Left: cql.Prop("parts.floors"), Right: cql.Prop("tags")}}}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Encode(tt.expr, m, "A")
			require.Error(t, err)
			assert.True(t, IsEncodeError(err), "got %T: %v", err, err)
		})
	}
}

func TestEncode_Nil(t *testing.T) {
	sql, err := NewFilterEncoder(dialect.Postgres{}).Encode(nil, testMapping(t), "A")
	require.NoError(t, err)
	assert.Empty(t, sql)
}

func TestEncode_SQLite(t *testing.T) {
	m := testMapping(t)
	enc := NewFilterEncoder(dialect.SQLite{})

	sql, err := enc.Encode(cql.SpatialOp{Op: cql.SWithin, Left: cql.Prop("geometry"), Right: cql.SpatialLiteral{WKT: "POINT (1 2)"}}, m, "A")
	require.NoError(t, err)
	assert.Equal(t, "ST_Within(GeomFromText(A.geom), GeomFromText('POINT (1 2)'))", sql)

	sql, err = enc.Encode(cql.Comparison{Op: cql.Eq, Left: cql.Prop("name"), Right: cql.Bool(true)}, m, "A")
	require.NoError(t, err)
	assert.Equal(t, "A.name = 1", sql)
}

func TestEncodeTableFilter(t *testing.T) {
	m := testMapping(t)
	enc := NewFilterEncoder(dialect.Postgres{})

	filter := cql.Comparison{Op: cql.Eq, Left: cql.Prop("kind"), Right: cql.Str("house")}
	sql, err := enc.EncodeTableFilter(filter, m.Main(), "B")
	require.NoError(t, err)
	assert.Equal(t, "B.kind = 'house'", sql)
}

func TestIsIDFilter(t *testing.T) {
	id := cql.Prop(cql.IDPlaceholder)

	assert.True(t, IsIDFilter(cql.In{Value: id, List: []cql.Expr{cql.Str("1")}}))
	assert.True(t, IsIDFilter(cql.Comparison{Op: cql.Eq, Left: id, Right: cql.Int(1)}))
	assert.False(t, IsIDFilter(cql.In{Value: id}))
	assert.False(t, IsIDFilter(cql.In{Value: cql.Prop("name"), List: []cql.Expr{cql.Str("1")}}))
	assert.False(t, IsIDFilter(cql.Comparison{Op: cql.Gt, Left: id, Right: cql.Int(1)}))
	assert.False(t, IsIDFilter(nil))
}
