package decoder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/mapping"
)

const (
	buildingPath = "/building"
	partPath     = "/building/[id=building_id]part{sortKey=pid}"
	roomPath     = "/building/[id=building_id]part{sortKey=pid}/[pid=part_id]room"
	tagPath      = "/building/[id=building_id]tag"
)

func buildingMapping(t *testing.T) *mapping.SqlQueryMapping {
	t.Helper()
	rules := []mapping.Rule{
		{Source: buildingPath, Type: mapping.TypeFeature},
		{Source: buildingPath + "/id", Target: "id", Type: "INTEGER", Role: mapping.RoleID},
		{Source: buildingPath + "/name", Target: "name", Type: "STRING"},
		{Source: buildingPath + "/geom", Target: "geometry", Type: "GEOMETRY", Role: mapping.RolePrimaryGeometry},
		{Source: buildingPath + "/built", Target: "built", Type: "DATE"},
		{Source: partPath, Target: "parts", Type: mapping.TypeObjectArray},
		{Source: partPath + "/floors", Target: "parts.floors", Type: "INTEGER"},
		{Source: roomPath, Target: "parts.rooms", Type: mapping.TypeObjectArray},
		{Source: roomPath + "/label", Target: "parts.rooms.label", Type: "STRING"},
		{Source: tagPath, Target: "tags", Type: mapping.TypeValueArray},
		{Source: tagPath + "/value", Target: "tags", Type: "STRING"},
	}
	m, err := mapping.Derive("building", rules, mapping.Options{})
	require.NoError(t, err)
	return m
}

func ids(v ...any) []any    { return v }
func values(v ...any) []any { return v }

func buildingRows() []Row {
	return []Row{
		{TablePath: buildingPath, IDs: ids(int64(1)), Values: values(int64(1), "A", "POINT (7.5 51.2)", "2020-01-01")},
		{TablePath: partPath, IDs: ids(int64(1), int64(10)), Values: values(int64(3))},
		{TablePath: roomPath, IDs: ids(int64(1), int64(10), int64(100)), Values: values("Kitchen")},
		{TablePath: roomPath, IDs: ids(int64(1), int64(10), int64(101)), Values: values([]byte("Hall"))},
		{TablePath: partPath, IDs: ids(int64(1), int64(11)), Values: values(int64(2))},
		{TablePath: roomPath, IDs: ids(int64(1), int64(11), int64(102)), Values: values("Attic")},
		{TablePath: tagPath, IDs: ids(int64(1), int64(5)), Values: values("old")},
		{TablePath: tagPath, IDs: ids(int64(1), int64(6)), Values: values("red")},
		{TablePath: buildingPath, IDs: ids(int64(2)), Values: values(int64(2), "B", nil, nil)},
		{TablePath: tagPath, IDs: ids(int64(2), int64(7)), Values: values("new")},
	}
}

func decode(t *testing.T, m *mapping.SqlQueryMapping, meta RowMeta, rows []Row, opts Options) *feature.Recorder {
	t.Helper()
	rec := feature.NewRecorder()
	err := New(m, rec, opts).Decode(context.Background(), meta, NewSliceSource(rows...))
	require.NoError(t, err)
	return rec
}

func TestDecode_Building(t *testing.T) {
	rec := decode(t, buildingMapping(t), RowMeta{NumberReturned: 2, NumberMatched: -1}, buildingRows(), Options{})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "building", []byte(rec.Trace()))
}

func TestDecode_ScenarioA(t *testing.T) {
	rules := []mapping.Rule{
		{Source: "/orders", Type: mapping.TypeFeature},
		{Source: "/orders/id", Target: "id", Type: "INTEGER"},
		{Source: "/orders/[id=order_id]items", Target: "items", Type: mapping.TypeObjectArray},
		{Source: "/orders/[id=order_id]items/name", Target: "items.name", Type: "STRING"},
	}
	m, err := mapping.Derive("orders", rules, mapping.Options{})
	require.NoError(t, err)

	rows := []Row{
		{TablePath: "/orders", IDs: ids(int64(1)), Values: values(int64(1))},
		{TablePath: "/orders/[id=order_id]items", IDs: ids(int64(1), int64(1)), Values: values("a")},
		{TablePath: "/orders/[id=order_id]items", IDs: ids(int64(1), int64(2)), Values: values("b")},
	}
	rec := decode(t, m, RowMeta{NumberReturned: 1, NumberMatched: -1}, rows, Options{})

	assert.Equal(t, []feature.EventKind{
		feature.EventStart,
		feature.EventFeatureStart,
		feature.EventValue,
		feature.EventArrayStart,
		feature.EventObjectStart, feature.EventValue, feature.EventObjectEnd,
		feature.EventObjectStart, feature.EventValue, feature.EventObjectEnd,
		feature.EventArrayEnd,
		feature.EventFeatureEnd,
		feature.EventEnd,
	}, feature.Kinds(rec.Events()))

	events := rec.Events()
	assert.Equal(t, []string{"items"}, events[3].Context.Path)
	assert.Nil(t, events[3].Context.Indexes)
	assert.Equal(t, []int{0}, events[4].Context.Indexes)
	assert.Equal(t, []int{0}, events[5].Context.Indexes)
	assert.Equal(t, []int{0}, events[6].Context.Indexes, "end carries the indexes of its start")
	assert.Equal(t, []int{1}, events[7].Context.Indexes)
	assert.Equal(t, "b", events[8].Context.Value)
	assert.Equal(t, []int{1}, events[9].Context.Indexes)
	assert.Nil(t, events[10].Context.Indexes)
}

func TestDecode_RepeatedIDKeepsIndex(t *testing.T) {
	m := buildingMapping(t)
	rows := []Row{
		{TablePath: buildingPath, IDs: ids(int64(1)), Values: values(int64(1))},
		{TablePath: tagPath, IDs: ids(int64(1), int64(5)), Values: values("x")},
		{TablePath: tagPath, IDs: ids(int64(1), int64(5)), Values: values("y")},
	}
	rec := decode(t, m, RowMeta{NumberMatched: -1}, rows, Options{})

	var indexes [][]int
	for _, e := range rec.Events() {
		if e.Kind == feature.EventValue && e.Context.PathString() == "tags" {
			indexes = append(indexes, e.Context.Indexes)
		}
	}
	assert.Equal(t, [][]int{{0}, {0}}, indexes)
}

func TestDecode_Deterministic(t *testing.T) {
	m := buildingMapping(t)
	meta := RowMeta{NumberReturned: 2, NumberMatched: 2}

	a, err := feature.MarshalCanonical(decode(t, m, meta, buildingRows(), Options{}).Events())
	require.NoError(t, err)
	b, err := feature.MarshalCanonical(decode(t, m, meta, buildingRows(), Options{}).Events())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecode_Empty(t *testing.T) {
	rec := decode(t, buildingMapping(t), RowMeta{NumberMatched: 0}, nil, Options{})

	assert.Equal(t, []feature.EventKind{feature.EventStart, feature.EventEnd}, feature.Kinds(rec.Events()))
	assert.Equal(t, int64(0), rec.Events()[0].Context.NumberMatched)
}

func TestDecode_GeometryError(t *testing.T) {
	m := buildingMapping(t)
	rows := []Row{
		{TablePath: buildingPath, IDs: ids(int64(1)), Values: values(int64(1), "A", "POINT (7.5")},
	}

	err := New(m, feature.NewRecorder(), Options{}).Decode(context.Background(), RowMeta{}, NewSliceSource(rows...))
	require.Error(t, err)
	assert.True(t, IsGeometryError(err))

	var ge *GeometryError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "geometry", ge.Path)
}

func TestDecode_Polygon(t *testing.T) {
	m := buildingMapping(t)
	rows := []Row{
		{TablePath: buildingPath, IDs: ids(int64(1)), Values: values(int64(1), nil, "POLYGON ((0 0, 1 0, 1 1, 0 0))")},
	}
	rec := decode(t, m, RowMeta{}, rows, Options{})

	var kinds []feature.EventKind
	var ordinates int
	for _, e := range rec.Events() {
		if e.Context.GeometryType != "" {
			kinds = append(kinds, e.Kind)
			if e.Kind == feature.EventValue {
				ordinates++
			}
		}
	}
	assert.Equal(t, 8, ordinates)
	assert.Equal(t, feature.EventObjectStart, kinds[0])
	assert.Equal(t, feature.EventArrayStart, kinds[1]) // rings
	assert.Equal(t, feature.EventArrayStart, kinds[2]) // ring
	assert.Equal(t, feature.EventArrayStart, kinds[3]) // position
	assert.Equal(t, feature.EventObjectEnd, kinds[len(kinds)-1])
}

func TestDecode_UnknownTable(t *testing.T) {
	d := New(buildingMapping(t), feature.NewRecorder(), Options{})
	require.NoError(t, d.OnMeta(RowMeta{}))

	err := d.OnRow(Row{TablePath: "/nope", IDs: ids(int64(1))})
	assert.Error(t, err)

	err = d.OnRow(Row{TablePath: partPath, IDs: ids(int64(1), int64(2))})
	assert.ErrorContains(t, err, "before the first feature")
}

func TestDecode_CloseOnce(t *testing.T) {
	rec := feature.NewRecorder()
	d := New(buildingMapping(t), rec, Options{})
	require.NoError(t, d.OnMeta(RowMeta{}))
	require.NoError(t, d.OnRow(Row{TablePath: buildingPath, IDs: ids(int64(1)), Values: values(int64(1))}))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	assert.Equal(t, feature.EventEnd, rec.Events()[len(rec.Events())-1].Kind)
	assert.Len(t, rec.Events(), 5)
	assert.ErrorIs(t, d.OnRow(Row{TablePath: buildingPath}), ErrClosed)
}

func TestDecode_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := feature.NewRecorder()
	err := New(buildingMapping(t), rec, Options{}).Decode(ctx, RowMeta{}, NewSliceSource(buildingRows()...))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, feature.EventEnd, rec.Events()[len(rec.Events())-1].Kind)
}

func TestDecode_HandlerError(t *testing.T) {
	boom := errors.New("boom")
	h := &failingHandler{err: boom}

	err := New(buildingMapping(t), h, Options{}).Decode(context.Background(), RowMeta{}, NewSliceSource(buildingRows()...))
	assert.ErrorIs(t, err, boom)
}

type failingHandler struct {
	feature.NopHandler
	err error
}

func (h *failingHandler) OnValue(feature.Context) error { return h.err }

func TestDecode_Connector(t *testing.T) {
	rules := []mapping.Rule{
		{Source: "/building", Type: mapping.TypeFeature},
		{Source: "/building/id", Target: "id", Type: "INTEGER"},
		{Source: "/building/[JSON]attrs", Target: "attrs", Type: "STRING"},
		{Source: "/building/[JSON]attrs/height", Target: "height", Type: "FLOAT"},
		{Source: "/building/[JSON]attrs/address", Target: "address", Type: mapping.TypeObject},
		{Source: "/building/[JSON]attrs/address/city", Target: "address.city", Type: "STRING"},
		{Source: "/building/[JSON]attrs/colors", Target: "colors", Type: mapping.TypeValueArray},
	}
	m, err := mapping.Derive("building", rules, mapping.Options{})
	require.NoError(t, err)

	rows := []Row{{
		TablePath: "/building",
		IDs:       ids(int64(1)),
		Values:    values(int64(1), `{"height": 12.5, "address": {"city": "Bonn"}, "colors": ["red", 7]}`),
	}}
	rec := decode(t, m, RowMeta{NumberMatched: -1}, rows, Options{})

	assert.Equal(t, `start returned=0 matched=-1
featureStart building
value id = "1" (INTEGER)
value height = "12.5" (FLOAT)
objectStart address
value address.city = "Bonn" (STRING)
objectEnd address
arrayStart colors
value colors [0] = "red" (STRING)
value colors [1] = "7" (INTEGER)
arrayEnd colors
featureEnd
end`, rec.Trace())
}

func TestDecode_UnknownConnector(t *testing.T) {
	rules := []mapping.Rule{
		{Source: "/building", Type: mapping.TypeFeature},
		{Source: "/building/[XML]doc", Target: "doc", Type: "STRING"},
	}
	m, err := mapping.Derive("building", rules, mapping.Options{})
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	rows := []Row{{TablePath: "/building", IDs: ids(int64(1)), Values: values("<a/>")}}
	rec := decode(t, m, RowMeta{}, rows, Options{Logger: logger})

	assert.Equal(t, []feature.EventKind{
		feature.EventStart, feature.EventFeatureStart, feature.EventFeatureEnd, feature.EventEnd,
	}, feature.Kinds(rec.Events()))
	assert.Contains(t, logs.String(), "unknown connector")
	assert.Contains(t, logs.String(), "connector=XML")
}

func TestMultiplicityTracker(t *testing.T) {
	tr := NewMultiplicityTracker()

	assert.Equal(t, -1, tr.Current(1))

	assert.Equal(t, 0, tr.Track(1, ids(1), ids(1, 10)))
	assert.Equal(t, 1, tr.Track(1, ids(1), ids(1, 11)))
	assert.Equal(t, 0, tr.Track(1, ids(1), ids(1, 10)))
	assert.Equal(t, 0, tr.Current(1))

	// new parent starts over
	assert.Equal(t, 0, tr.Track(1, ids(2), ids(2, 12)))
	assert.Equal(t, 1, tr.Track(1, ids(2), ids(2, 13)))
	assert.Equal(t, 1, tr.Current(1))

	tr.Reset()
	assert.Equal(t, -1, tr.Current(1))
}
