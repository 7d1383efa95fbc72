package feature

import "strings"

// Handler receives the events of a feature stream.
//
// Events arrive strictly in stream order from a single goroutine. Returning
// an error aborts decoding; the decoder returns the error wrapped.
type Handler interface {
	OnStart(ctx Context) error
	OnEnd(ctx Context) error
	OnFeatureStart(ctx Context) error
	OnFeatureEnd(ctx Context) error
	OnObjectStart(ctx Context) error
	OnObjectEnd(ctx Context) error
	OnArrayStart(ctx Context) error
	OnArrayEnd(ctx Context) error
	OnValue(ctx Context) error
}

// Context describes the position of an event in the feature.
type Context struct {
	// Type is the feature type name.
	Type string

	// Path is the target path of the element.
	Path []string

	// Indexes holds the 0-based index within every open array, outermost
	// first.
	Indexes []int

	// Value is the text of a value event.
	Value string

	// ValueType is the schema type of Value (STRING, INTEGER, FLOAT,
	// BOOLEAN, DATE, DATETIME).
	ValueType string

	// GeometryType is set on events inside a geometry (POINT, POLYGON, ...).
	GeometryType string

	// Dimension is the coordinate dimension of a geometry.
	Dimension int

	// NumberReturned and NumberMatched are the meta counters. NumberMatched
	// is -1 when not computed.
	NumberReturned int64
	NumberMatched  int64
}

// PathString returns the dotted target path.
func (c Context) PathString() string {
	return strings.Join(c.Path, ".")
}

// NopHandler ignores every event. Embed it to implement a subset of
// Handler.
type NopHandler struct{}

func (NopHandler) OnStart(Context) error        { return nil }
func (NopHandler) OnEnd(Context) error          { return nil }
func (NopHandler) OnFeatureStart(Context) error { return nil }
func (NopHandler) OnFeatureEnd(Context) error   { return nil }
func (NopHandler) OnObjectStart(Context) error  { return nil }
func (NopHandler) OnObjectEnd(Context) error    { return nil }
func (NopHandler) OnArrayStart(Context) error   { return nil }
func (NopHandler) OnArrayEnd(Context) error     { return nil }
func (NopHandler) OnValue(Context) error        { return nil }
