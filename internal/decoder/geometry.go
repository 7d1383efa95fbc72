package decoder

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/roach88/featsql/internal/feature"
)

// Geometry type names reported in feature.Context.GeometryType.
const (
	GeometryPoint              = "POINT"
	GeometryLineString         = "LINESTRING"
	GeometryPolygon            = "POLYGON"
	GeometryMultiPoint         = "MULTIPOINT"
	GeometryMultiLineString    = "MULTILINESTRING"
	GeometryMultiPolygon       = "MULTIPOLYGON"
	GeometryGeometryCollection = "GEOMETRYCOLLECTION"
)

var errUnsupportedGeometry = errors.New("unsupported geometry")

// parseGeometry decodes WKB from bytes when binary is set, WKT otherwise.
func parseGeometry(v any, binary bool) (geom.T, error) {
	switch raw := v.(type) {
	case []byte:
		if binary {
			return wkb.Unmarshal(raw)
		}
		return wkt.Unmarshal(string(raw))
	case string:
		if binary {
			return nil, fmt.Errorf("expected WKB bytes, got text")
		}
		return wkt.Unmarshal(raw)
	default:
		return nil, fmt.Errorf("unsupported geometry value %T", v)
	}
}

func geometryType(g geom.T) (string, error) {
	switch g.(type) {
	case *geom.Point:
		return GeometryPoint, nil
	case *geom.LineString:
		return GeometryLineString, nil
	case *geom.Polygon:
		return GeometryPolygon, nil
	case *geom.MultiPoint:
		return GeometryMultiPoint, nil
	case *geom.MultiLineString:
		return GeometryMultiLineString, nil
	case *geom.MultiPolygon:
		return GeometryMultiPolygon, nil
	case *geom.GeometryCollection:
		return GeometryGeometryCollection, nil
	default:
		return "", fmt.Errorf("%w %T", errUnsupportedGeometry, g)
	}
}

// geometryWriter emits the events of one geometry value: an object for the
// geometry, nested arrays for coordinate sequences and one FLOAT value per
// ordinate.
type geometryWriter struct {
	h feature.Handler
}

func (w geometryWriter) write(ctx feature.Context, g geom.T) error {
	typ, err := geometryType(g)
	if err != nil {
		return err
	}
	ctx.GeometryType = typ
	ctx.Dimension = g.Stride()

	if err := w.h.OnObjectStart(ctx); err != nil {
		return err
	}

	switch g := g.(type) {
	case *geom.Point:
		if len(g.FlatCoords()) > 0 {
			err = w.position(ctx, g.Coords())
		}
	case *geom.LineString:
		err = w.positions(ctx, g.Coords())
	case *geom.MultiPoint:
		err = w.positions(ctx, g.Coords())
	case *geom.Polygon:
		err = w.rings(ctx, g.Coords())
	case *geom.MultiLineString:
		err = w.rings(ctx, g.Coords())
	case *geom.MultiPolygon:
		err = w.array(ctx, len(g.Coords()), func(i int) error {
			return w.rings(ctx, g.Coords()[i])
		})
	case *geom.GeometryCollection:
		err = w.array(ctx, g.NumGeoms(), func(i int) error {
			return w.write(ctx, g.Geom(i))
		})
	}
	if err != nil {
		return err
	}
	return w.h.OnObjectEnd(ctx)
}

func (w geometryWriter) array(ctx feature.Context, n int, elem func(i int) error) error {
	if err := w.h.OnArrayStart(ctx); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := elem(i); err != nil {
			return err
		}
	}
	return w.h.OnArrayEnd(ctx)
}

func (w geometryWriter) rings(ctx feature.Context, rings [][]geom.Coord) error {
	return w.array(ctx, len(rings), func(i int) error {
		return w.positions(ctx, rings[i])
	})
}

func (w geometryWriter) positions(ctx feature.Context, coords []geom.Coord) error {
	return w.array(ctx, len(coords), func(i int) error {
		return w.position(ctx, coords[i])
	})
}

func (w geometryWriter) position(ctx feature.Context, c geom.Coord) error {
	return w.array(ctx, len(c), func(i int) error {
		v := ctx
		v.Value = strconv.FormatFloat(c[i], 'f', -1, 64)
		v.ValueType = "FLOAT"
		return w.h.OnValue(v)
	})
}
