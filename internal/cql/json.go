package cql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ParseJSON decodes a CQL2-JSON filter into an expression tree.
//
// Supported forms:
//   - {"op": "<op>", "args": [...]} for logical, comparison, temporal,
//     spatial and array operators, casei/accenti and functions
//   - {"property": "name"}
//   - {"timestamp": "..."}, {"date": "..."}, {"interval": [start, end]}
//   - {"bbox": [minx, miny, maxx, maxy]} and GeoJSON geometries
//   - strings, numbers, booleans and arrays as literals
func ParseJSON(data []byte) (Expr, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode cql2-json: %w", err)
	}
	return parseValue(raw)
}

func parseValue(v any) (Expr, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid cql2 expression")
	case string:
		return Str(val), nil
	case bool:
		return Bool(val), nil
	case json.Number:
		return parseNumber(val)
	case []any:
		elems := make([]Expr, len(val))
		for i, el := range val {
			e, err := parseValue(el)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			elems[i] = e
		}
		return ArrayLiteral{Elems: elems}, nil
	case map[string]any:
		return parseObject(val)
	default:
		return nil, fmt.Errorf("unsupported cql2-json value: %T", v)
	}
}

func parseNumber(n json.Number) (Expr, error) {
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return Float(f), nil
}

func parseObject(obj map[string]any) (Expr, error) {
	if name, ok := obj["property"].(string); ok {
		return Property{Name: name}, nil
	}
	if ts, ok := obj["timestamp"].(string); ok {
		return Timestamp(ts), nil
	}
	if d, ok := obj["date"].(string); ok {
		return Date(d), nil
	}
	if iv, ok := obj["interval"].([]any); ok {
		return parseInterval(iv)
	}
	if bbox, ok := obj["bbox"].([]any); ok {
		return parseBbox(bbox)
	}
	if _, ok := obj["coordinates"]; ok {
		return parseGeoJSON(obj)
	}
	if _, ok := obj["geometries"]; ok {
		return parseGeoJSON(obj)
	}
	if op, ok := obj["op"].(string); ok {
		rawArgs, _ := obj["args"].([]any)
		args := make([]Expr, len(rawArgs))
		for i, a := range rawArgs {
			e, err := parseValue(a)
			if err != nil {
				return nil, fmt.Errorf("%s args[%d]: %w", op, i, err)
			}
			args[i] = e
		}
		return buildOp(op, args)
	}
	return nil, fmt.Errorf("unrecognized cql2-json object with keys %v", keysOf(obj))
}

func buildOp(op string, args []Expr) (Expr, error) {
	lower := strings.ToLower(op)

	switch lower {
	case "and":
		return And{Args: args}, nil
	case "or":
		return Or{Args: args}, nil
	case "not":
		if err := arity(op, args, 1); err != nil {
			return nil, err
		}
		return Not{Arg: args[0]}, nil
	case "=", "<>", "<", "<=", ">", ">=":
		if err := arity(op, args, 2); err != nil {
			return nil, err
		}
		return Comparison{Op: ComparisonOp(lower), Left: args[0], Right: args[1]}, nil
	case "like":
		if err := arity(op, args, 2); err != nil {
			return nil, err
		}
		return Like{Value: args[0], Pattern: args[1]}, nil
	case "between":
		if err := arity(op, args, 3); err != nil {
			return nil, err
		}
		return Between{Value: args[0], Lower: args[1], Upper: args[2]}, nil
	case "in":
		if err := arity(op, args, 2); err != nil {
			return nil, err
		}
		list, ok := args[1].(ArrayLiteral)
		if !ok {
			return nil, fmt.Errorf("in: second argument must be an array")
		}
		return In{Value: args[0], List: list.Elems}, nil
	case "isnull":
		if err := arity(op, args, 1); err != nil {
			return nil, err
		}
		return IsNull{Arg: args[0]}, nil
	case "casei":
		if err := arity(op, args, 1); err != nil {
			return nil, err
		}
		return Casei{Arg: args[0]}, nil
	case "accenti":
		if err := arity(op, args, 1); err != nil {
			return nil, err
		}
		return Accenti{Arg: args[0]}, nil
	}

	upper := strings.ToUpper(op)
	switch {
	case strings.HasPrefix(upper, "T_"):
		if err := arity(op, args, 2); err != nil {
			return nil, err
		}
		return TemporalOp{Op: TemporalOperator(upper), Left: args[0], Right: args[1]}, nil
	case strings.HasPrefix(upper, "S_"):
		if err := arity(op, args, 2); err != nil {
			return nil, err
		}
		return SpatialOp{Op: SpatialOperator(upper), Left: args[0], Right: args[1]}, nil
	case strings.HasPrefix(upper, "A_"):
		if err := arity(op, args, 2); err != nil {
			return nil, err
		}
		return ArrayOp{Op: ArrayOperator(upper), Left: args[0], Right: args[1]}, nil
	}

	return Function{Name: upper, Args: args}, nil
}

func arity(op string, args []Expr, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d", op, n, len(args))
	}
	return nil
}

func parseInterval(bounds []any) (Expr, error) {
	if len(bounds) != 2 {
		return nil, fmt.Errorf("interval: expected 2 bounds, got %d", len(bounds))
	}
	start, sok := bounds[0].(string)
	end, eok := bounds[1].(string)
	if sok && eok {
		return TemporalLiteral{Type: Interval, Value: start, End: end}, nil
	}

	exprs := make([]Expr, 2)
	for i, b := range bounds {
		if s, ok := b.(string); ok {
			exprs[i] = temporalBound(s)
			continue
		}
		e, err := parseValue(b)
		if err != nil {
			return nil, fmt.Errorf("interval[%d]: %w", i, err)
		}
		exprs[i] = e
	}
	return IntervalExpr{Start: exprs[0], End: exprs[1]}, nil
}

// temporalBound interprets a bare interval bound string.
func temporalBound(s string) TemporalLiteral {
	switch {
	case s == OpenBound || s == "":
		return TemporalLiteral{Type: Open, Value: OpenBound}
	case len(s) == len("2006-01-02"):
		return Date(s)
	default:
		return Timestamp(s)
	}
}

func parseBbox(vals []any) (Expr, error) {
	if len(vals) != 4 && len(vals) != 6 {
		return nil, fmt.Errorf("bbox: expected 4 or 6 numbers, got %d", len(vals))
	}
	nums := make([]float64, len(vals))
	for i, v := range vals {
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("bbox[%d]: not a number", i)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("bbox[%d]: %w", i, err)
		}
		nums[i] = f
	}
	minX, minY, maxX, maxY := nums[0], nums[1], nums[2], nums[3]
	if len(nums) == 6 {
		minX, minY, maxX, maxY = nums[0], nums[1], nums[3], nums[4]
	}
	poly := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
	text, err := wkt.Marshal(poly)
	if err != nil {
		return nil, fmt.Errorf("bbox: %w", err)
	}
	return SpatialLiteral{WKT: text}, nil
}

func parseGeoJSON(obj map[string]any) (Expr, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	text, err := wkt.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	return SpatialLiteral{WKT: text}, nil
}

func keysOf(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}
