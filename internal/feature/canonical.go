package feature

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// DomainTrace prefixes trace fingerprints. The version suffix allows the
// serialization to change without colliding with old fingerprints.
const DomainTrace = "featsql/trace/v1"

// MarshalCanonical serializes events as RFC 8785 canonical JSON: object
// keys in UTF-16 code unit order, strings NFC normalized, no HTML escaping,
// no floats and no nulls. Empty context fields are omitted.
func MarshalCanonical(events []Event) ([]byte, error) {
	arr := make([]any, len(events))
	for i, e := range events {
		arr[i] = eventObject(e)
	}
	return marshalCanonical(arr)
}

// Fingerprint returns the SHA-256 of the canonical serialization of events,
// with domain separation.
func Fingerprint(events []Event) (string, error) {
	data, err := MarshalCanonical(events)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainTrace))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func eventObject(e Event) map[string]any {
	c := e.Context
	obj := map[string]any{"kind": string(e.Kind)}
	if c.Type != "" {
		obj["type"] = c.Type
	}
	if len(c.Path) > 0 {
		obj["path"] = c.PathString()
	}
	if len(c.Indexes) > 0 {
		idx := make([]any, len(c.Indexes))
		for i, n := range c.Indexes {
			idx[i] = n
		}
		obj["indexes"] = idx
	}
	if e.Kind == EventValue {
		obj["value"] = c.Value
		obj["valueType"] = c.ValueType
	}
	if c.GeometryType != "" {
		obj["geometryType"] = c.GeometryType
		obj["dimension"] = c.Dimension
	}
	if e.Kind == EventStart {
		obj["numberReturned"] = c.NumberReturned
		obj["numberMatched"] = c.NumberMatched
	}
	return obj
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(val), nil
	case int64:
		return strconv.AppendInt(nil, val, 10), nil
	case int:
		return strconv.AppendInt(nil, int64(val), 10), nil
	case bool:
		return strconv.AppendBool(nil, val), nil
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// marshalCanonicalString quotes s after NFC normalization. Only the quote,
// the backslash and control characters are escaped.
func marshalCanonicalString(s string) []byte {
	const hexDigits = "0123456789abcdef"

	normalized := norm.NFC.String(s)
	buf := make([]byte, 0, len(normalized)+2)
	buf = append(buf, '"')
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		switch {
		case c == '"':
			buf = append(buf, '\\', '"')
		case c == '\\':
			buf = append(buf, '\\', '\\')
		case c == '\b':
			buf = append(buf, '\\', 'b')
		case c == '\f':
			buf = append(buf, '\\', 'f')
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalCanonicalString(k))
		buf.WriteByte(':')
		data, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// compareKeysRFC8785 orders strings by UTF-16 code units. Byte order of
// UTF-8 differs for characters above U+FFFF.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
