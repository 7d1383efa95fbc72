package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPath(t *testing.T) {
	testCases := []struct {
		path string
		want []string
	}{
		{"/building", []string{"building"}},
		{"building/name", []string{"building", "name"}},
		{"/a/[id=a_id]b{sortKey=x}/c", []string{"a", "[id=a_id]b{sortKey=x}", "c"}},
		{`/a{filter={"op":"=","args":[{"property":"p"},"x/y"]}}/b`, []string{`a{filter={"op":"=","args":[{"property":"p"},"x/y"]}}`, "b"}},
		{"/a/'one/two'", []string{"a", "'one/two'"}},
		{"/a/b{expression=concat({{table}}.x, '/')}", []string{"a", "b{expression=concat({{table}}.x, '/')}"}},
	}

	for _, tt := range testCases {
		t.Run(tt.path, func(t *testing.T) {
			got, err := splitPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitPath_Errors(t *testing.T) {
	for _, path := range []string{"", "/", "/a//b", "/a/[x=y", "/a/b}", "/a/'open"} {
		t.Run(path, func(t *testing.T) {
			_, err := splitPath(path)
			assert.Error(t, err)
		})
	}
}

func TestParseSegment(t *testing.T) {
	s, err := parseSegment("[id=building_id]part{sortKey=pid}{sortKeyUnique=false}{primaryKey=pk}")
	require.NoError(t, err)
	assert.True(t, s.IsJoin())
	assert.Equal(t, "id", s.JoinSource)
	assert.Equal(t, "building_id", s.JoinTarget)
	assert.Equal(t, "part", s.Name)
	assert.Equal(t, "pid", s.sortKey())
	assert.Equal(t, "pk", s.primaryKey())
	unique, err := s.sortKeyUnique()
	require.NoError(t, err)
	assert.False(t, unique)

	s, err = parseSegment("[json]doc")
	require.NoError(t, err)
	assert.False(t, s.IsJoin())
	assert.Equal(t, "JSON", s.Connector)
	assert.Equal(t, "doc", s.Name)

	s, err = parseSegment("plain")
	require.NoError(t, err)
	assert.Equal(t, "id", s.sortKey())
	assert.Equal(t, "id", s.primaryKey())

	s, err = parseSegment("'a''b'")
	require.NoError(t, err)
	assert.True(t, s.IsConstant)
	assert.Equal(t, "a'b", s.Constant)
}

func TestParseSegment_Errors(t *testing.T) {
	for _, raw := range []string{"[a=]b", "[1x]b", "9name", "name{novalue}", "name{a=b}trailing", "'open"} {
		t.Run(raw, func(t *testing.T) {
			_, err := parseSegment(raw)
			assert.Error(t, err)
		})
	}
}
