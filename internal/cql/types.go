package cql

import "strings"

// Type is the logical kind of a CQL2 operand.
type Type int

const (
	Unknown Type = iota
	String
	Boolean
	Integer
	Long
	Double
	LocalDate
	Instant
	Interval
	Geometry
	List
	Open
)

// Schema type tags used by feature schemas.
const (
	SchemaString      = "STRING"
	SchemaBoolean     = "BOOLEAN"
	SchemaInteger     = "INTEGER"
	SchemaFloat       = "FLOAT"
	SchemaDate        = "DATE"
	SchemaDatetime    = "DATETIME"
	SchemaInterval    = "INTERVAL"
	SchemaGeometry    = "GEOMETRY"
	SchemaValueArray  = "VALUE_ARRAY"
	SchemaObjectArray = "OBJECT_ARRAY"
	SchemaOpen        = "OPEN"
	SchemaUnknown     = "UNKNOWN"
)

var typeNames = map[Type]string{
	Unknown:   "Unknown",
	String:    "String",
	Boolean:   "Boolean",
	Integer:   "Integer",
	Long:      "Long",
	Double:    "Double",
	LocalDate: "LocalDate",
	Instant:   "Instant",
	Interval:  "Interval",
	Geometry:  "Geometry",
	List:      "List",
	Open:      "Open",
}

var schemaTypes = map[Type]string{
	Unknown:   SchemaUnknown,
	String:    SchemaString,
	Boolean:   SchemaBoolean,
	Integer:   SchemaInteger,
	Long:      SchemaInteger,
	Double:    SchemaFloat,
	LocalDate: SchemaDate,
	Instant:   SchemaDatetime,
	Interval:  SchemaInterval,
	Geometry:  SchemaGeometry,
	List:      SchemaValueArray,
	Open:      SchemaOpen,
}

// String returns the name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// SchemaType returns the external schema type tag for t.
// Integer and Long both map to INTEGER.
func (t Type) SchemaType() string {
	if s, ok := schemaTypes[t]; ok {
		return s
	}
	return SchemaUnknown
}

// TypeFromSchemaType maps a schema type tag to a Type.
// Unrecognized tags yield Unknown so that schema-less properties pass through
// the type checker.
func TypeFromSchemaType(schemaType string) Type {
	switch strings.ToUpper(schemaType) {
	case SchemaString:
		return String
	case SchemaInteger:
		return Integer
	case SchemaFloat:
		return Double
	case SchemaBoolean:
		return Boolean
	case SchemaDatetime:
		return Instant
	case SchemaDate:
		return LocalDate
	case SchemaGeometry:
		return Geometry
	case SchemaValueArray, SchemaObjectArray:
		return List
	default:
		return Unknown
	}
}

// Family is a named set of mutually comparable types.
type Family struct {
	Name  string
	Types []Type
}

// Contains reports whether t belongs to the family.
func (f Family) Contains(t Type) bool {
	for _, ft := range f.Types {
		if ft == t {
			return true
		}
	}
	return false
}

// SchemaTypes returns the distinct schema type tags of the family in
// declaration order.
func (f Family) SchemaTypes() []string {
	return appendSchemaTypes(nil, f.Types)
}

func appendSchemaTypes(dst []string, types []Type) []string {
	for _, t := range types {
		st := t.SchemaType()
		if !containsString(dst, st) {
			dst = append(dst, st)
		}
	}
	return dst
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Type families. Read-only after package initialization.
var (
	FamilyNumber   = Family{Name: "NUMBER", Types: []Type{Integer, Long, Double}}
	FamilyText     = Family{Name: "TEXT", Types: []Type{String}}
	FamilyBoolean  = Family{Name: "BOOLEAN", Types: []Type{Boolean}}
	FamilyInstant  = Family{Name: "INSTANT", Types: []Type{Instant, LocalDate}}
	FamilyTemporal = Family{Name: "TEMPORAL", Types: []Type{Instant, LocalDate, Interval, Open}}
	FamilySpatial  = Family{Name: "SPATIAL", Types: []Type{Geometry}}
	FamilyArray    = Family{Name: "ARRAY", Types: []Type{List}}
)
