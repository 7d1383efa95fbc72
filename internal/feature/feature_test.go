package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	path := []string{"parts"}
	idx := []int{1}

	require.NoError(t, r.OnStart(Context{NumberReturned: 1, NumberMatched: -1}))
	require.NoError(t, r.OnFeatureStart(Context{Type: "building"}))
	require.NoError(t, r.OnArrayStart(Context{Path: path}))
	require.NoError(t, r.OnValue(Context{Path: []string{"parts", "floors"}, Indexes: idx, Value: "3", ValueType: "INTEGER"}))

	// recorded contexts must not alias caller buffers
	path[0] = "changed"
	idx[0] = 9

	require.NoError(t, r.OnArrayEnd(Context{Path: []string{"parts"}}))
	require.NoError(t, r.OnFeatureEnd(Context{}))
	require.NoError(t, r.OnEnd(Context{}))

	assert.Equal(t, []EventKind{
		EventStart, EventFeatureStart, EventArrayStart, EventValue,
		EventArrayEnd, EventFeatureEnd, EventEnd,
	}, Kinds(r.Events()))

	assert.Equal(t, `start returned=1 matched=-1
featureStart building
arrayStart parts
value parts.floors [1] = "3" (INTEGER)
arrayEnd parts
featureEnd
end`, r.Trace())

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestEventString_Geometry(t *testing.T) {
	e := Event{Kind: EventValue, Context: Context{
		Path:         []string{"geometry"},
		Value:        "7.5",
		ValueType:    "FLOAT",
		GeometryType: "POINT",
		Dimension:    2,
	}}
	assert.Equal(t, `value geometry {POINT/2} = "7.5" (FLOAT)`, e.String())
}

func TestMarshalCanonical(t *testing.T) {
	events := []Event{
		{Kind: EventStart, Context: Context{NumberReturned: 2, NumberMatched: -1}},
		{Kind: EventValue, Context: Context{Path: []string{"name"}, Value: "a<b>\"c\"\n", ValueType: "STRING"}},
		{Kind: EventObjectStart, Context: Context{Path: []string{"parts"}, Indexes: []int{2}}},
	}

	data, err := MarshalCanonical(events)
	require.NoError(t, err)
	assert.Equal(t, `[{"kind":"start","numberMatched":-1,"numberReturned":2},`+
		`{"kind":"value","path":"name","value":"a<b>\"c\"\n","valueType":"STRING"},`+
		`{"indexes":[2],"kind":"objectStart","path":"parts"}]`, string(data))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	composed := []Event{{Kind: EventValue, Context: Context{Value: "caf\u00e9", ValueType: "STRING"}}}
	decomposed := []Event{{Kind: EventValue, Context: Context{Value: "cafe\u0301", ValueType: "STRING"}}}

	a, err := MarshalCanonical(composed)
	require.NoError(t, err)
	b, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalCanonical_Errors(t *testing.T) {
	_, err := marshalCanonical(1.5)
	assert.Error(t, err)
	_, err = marshalCanonical(nil)
	assert.Error(t, err)
	_, err = marshalCanonical(map[string]any{"a": []any{struct{}{}}})
	assert.Error(t, err)
}

func TestCompareKeysRFC8785(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting at 0xD800 < 0xE000
	assert.Equal(t, -1, compareKeysRFC8785("\U00010000", "\uE000"))
	assert.Equal(t, 0, compareKeysRFC8785("a", "a"))
	assert.Equal(t, 1, compareKeysRFC8785("b", "a"))
}

func TestFingerprint(t *testing.T) {
	events := []Event{{Kind: EventFeatureStart}, {Kind: EventFeatureEnd}}

	a, err := Fingerprint(events)
	require.NoError(t, err)
	b, err := Fingerprint(append([]Event(nil), events...))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(events[:1])
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
