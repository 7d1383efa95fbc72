package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/featsql/internal/feature"
	"github.com/roach88/featsql/internal/mapping"
)

// Connector decodes the payload of a connector column into events below
// the column's target path.
type Connector interface {
	Decode(payload []byte, col mapping.SqlQueryColumn, base feature.Context, h feature.Handler) error

	// Reset drops state kept between rows of one feature.
	Reset()
}

// JSONConnector reads connector properties out of a JSON document.
//
// A column without connector properties emits the whole document as one
// value. Otherwise every property is looked up by its key path; missing keys
// are skipped.
type JSONConnector struct{}

// Decode implements Connector.
func (JSONConnector) Decode(payload []byte, col mapping.SqlQueryColumn, base feature.Context, h feature.Handler) error {
	if len(col.ConnectorProperties) == 0 {
		ctx := base
		ctx.Value = string(payload)
		ctx.ValueType = col.Type
		return h.OnValue(ctx)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode JSON of %s: %w", col.PathString(), err)
	}
	return jsonWriter{h: h}.properties(base, doc, col.ConnectorProperties)
}

// Reset implements Connector.
func (JSONConnector) Reset() {}

type jsonWriter struct {
	h feature.Handler
}

func (w jsonWriter) properties(base feature.Context, doc any, props []mapping.ConnectorProperty) error {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	for _, p := range props {
		v, ok := lookup(obj, p.Source)
		if !ok || v == nil {
			continue
		}
		ctx := base
		ctx.Path = p.Path
		if err := w.property(ctx, v, p); err != nil {
			return err
		}
	}
	return nil
}

func (w jsonWriter) property(ctx feature.Context, v any, p mapping.ConnectorProperty) error {
	switch p.Type {
	case mapping.TypeObject:
		if err := w.h.OnObjectStart(ctx); err != nil {
			return err
		}
		if err := w.properties(ctx, v, p.Children); err != nil {
			return err
		}
		return w.h.OnObjectEnd(ctx)
	case mapping.TypeObjectArray, mapping.TypeValueArray:
		arr, ok := v.([]any)
		if !ok {
			return nil
		}
		if err := w.h.OnArrayStart(ctx); err != nil {
			return err
		}
		for i, el := range arr {
			ec := ctx
			ec.Indexes = append(append([]int(nil), ctx.Indexes...), i)
			if err := w.element(ec, el, p); err != nil {
				return err
			}
		}
		return w.h.OnArrayEnd(ctx)
	default:
		ctx.Value = jsonText(v)
		ctx.ValueType = p.Type
		return w.h.OnValue(ctx)
	}
}

func (w jsonWriter) element(ctx feature.Context, el any, p mapping.ConnectorProperty) error {
	if p.Type == mapping.TypeValueArray {
		if el == nil {
			return nil
		}
		ctx.Value = jsonText(el)
		ctx.ValueType = jsonType(el)
		return w.h.OnValue(ctx)
	}
	if err := w.h.OnObjectStart(ctx); err != nil {
		return err
	}
	if err := w.properties(ctx, el, p.Children); err != nil {
		return err
	}
	return w.h.OnObjectEnd(ctx)
}

func lookup(obj map[string]any, keys []string) (any, bool) {
	var cur any = obj
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func jsonText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func jsonType(v any) string {
	switch t := v.(type) {
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			return "FLOAT"
		}
		return "INTEGER"
	case bool:
		return "BOOLEAN"
	default:
		return "STRING"
	}
}
