package mapping

import (
	"strings"

	"github.com/roach88/featsql/internal/cql"
)

// Rule maps a source path in the database to a target path in the feature.
type Rule struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Type   string `json:"type" yaml:"type"`
	Role   string `json:"role,omitempty" yaml:"role,omitempty"`
}

// Structural schema types. Scalar types use the cql schema type tags
// (STRING, INTEGER, FLOAT, BOOLEAN, DATE, DATETIME, GEOMETRY).
const (
	TypeFeature     = "FEATURE"
	TypeObject      = "OBJECT"
	TypeObjectArray = cql.SchemaObjectArray
	TypeValueArray  = cql.SchemaValueArray
)

// Roles attach a meaning to a property beyond its type.
const (
	RoleID              = "ID"
	RolePrimaryGeometry = "PRIMARY_GEOMETRY"
	RolePrimaryInstant  = "PRIMARY_INSTANT"
)

// isMultiple reports whether values of the given type repeat within one
// feature.
func isMultiple(schemaType string) bool {
	switch strings.ToUpper(schemaType) {
	case TypeObjectArray, TypeValueArray:
		return true
	}
	return false
}

// splitTarget splits a dotted target path. The empty target is the feature
// itself.
func splitTarget(target string) []string {
	if target == "" {
		return nil
	}
	return strings.Split(target, ".")
}

// Options controls type-driven column operations.
type Options struct {
	// GeometryEncoding selects WKT or WKB for geometry columns. Default WKT.
	GeometryEncoding Operation

	// ForcePolygonCCW adds FORCE_POLYGON_CCW to every geometry column.
	ForcePolygonCCW bool

	// LinearizeCurves adds LINEARIZE_CURVES to every geometry column.
	LinearizeCurves bool
}

func (o Options) withDefaults() Options {
	if o.GeometryEncoding != OpWkb {
		o.GeometryEncoding = OpWkt
	}
	return o
}
