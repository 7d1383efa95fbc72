package feature

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind names a Handler callback.
type EventKind string

const (
	EventStart        EventKind = "start"
	EventEnd          EventKind = "end"
	EventFeatureStart EventKind = "featureStart"
	EventFeatureEnd   EventKind = "featureEnd"
	EventObjectStart  EventKind = "objectStart"
	EventObjectEnd    EventKind = "objectEnd"
	EventArrayStart   EventKind = "arrayStart"
	EventArrayEnd     EventKind = "arrayEnd"
	EventValue        EventKind = "value"
)

// Event is one recorded Handler callback.
type Event struct {
	Kind    EventKind
	Context Context
}

// String renders the event as one trace line:
//
//	value parts.floors [1] = "3" (INTEGER)
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))

	c := e.Context
	if len(c.Path) > 0 {
		b.WriteString(" " + c.PathString())
	}
	if len(c.Indexes) > 0 {
		idx := make([]string, len(c.Indexes))
		for i, n := range c.Indexes {
			idx[i] = strconv.Itoa(n)
		}
		b.WriteString(" [" + strings.Join(idx, " ") + "]")
	}
	if c.GeometryType != "" {
		fmt.Fprintf(&b, " {%s/%d}", c.GeometryType, c.Dimension)
	}
	switch e.Kind {
	case EventValue:
		fmt.Fprintf(&b, " = %q (%s)", c.Value, c.ValueType)
	case EventStart:
		fmt.Fprintf(&b, " returned=%d matched=%d", c.NumberReturned, c.NumberMatched)
	case EventFeatureStart:
		if c.Type != "" {
			b.WriteString(" " + c.Type)
		}
	}
	return b.String()
}

// Recorder is a Handler that records every event.
// It is not safe for concurrent use, like every Handler.
type Recorder struct {
	events []Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Events returns the recorded events in order.
func (r *Recorder) Events() []Event {
	return r.events
}

// Trace returns the recorded events as trace lines joined by newlines.
func (r *Recorder) Trace() string {
	lines := make([]string, len(r.events))
	for i, e := range r.events {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.events = nil
}

// record copies the slices of ctx: decoders reuse their path and index
// buffers between events.
func (r *Recorder) record(kind EventKind, ctx Context) error {
	if ctx.Path != nil {
		ctx.Path = append([]string(nil), ctx.Path...)
	}
	if ctx.Indexes != nil {
		ctx.Indexes = append([]int(nil), ctx.Indexes...)
	}
	r.events = append(r.events, Event{Kind: kind, Context: ctx})
	return nil
}

func (r *Recorder) OnStart(ctx Context) error        { return r.record(EventStart, ctx) }
func (r *Recorder) OnEnd(ctx Context) error          { return r.record(EventEnd, ctx) }
func (r *Recorder) OnFeatureStart(ctx Context) error { return r.record(EventFeatureStart, ctx) }
func (r *Recorder) OnFeatureEnd(ctx Context) error   { return r.record(EventFeatureEnd, ctx) }
func (r *Recorder) OnObjectStart(ctx Context) error  { return r.record(EventObjectStart, ctx) }
func (r *Recorder) OnObjectEnd(ctx Context) error    { return r.record(EventObjectEnd, ctx) }
func (r *Recorder) OnArrayStart(ctx Context) error   { return r.record(EventArrayStart, ctx) }
func (r *Recorder) OnArrayEnd(ctx Context) error     { return r.record(EventArrayEnd, ctx) }
func (r *Recorder) OnValue(ctx Context) error        { return r.record(EventValue, ctx) }

// Kinds returns the event kinds in order.
func Kinds(events []Event) []EventKind {
	kinds := make([]EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}
