package mapping

import (
	"strings"

	"github.com/roach88/featsql/internal/cql"
)

// Operation is a rendering instruction attached to a column.
type Operation string

const (
	OpConstant        Operation = "CONSTANT"
	OpExpression      Operation = "EXPRESSION"
	OpWkt             Operation = "WKT"
	OpWkb             Operation = "WKB"
	OpDate            Operation = "DATE"
	OpDatetime        Operation = "DATETIME"
	OpConnector       Operation = "CONNECTOR"
	OpForcePolygonCCW Operation = "FORCE_POLYGON_CCW"
	OpLinearizeCurves Operation = "LINEARIZE_CURVES"
)

// shapeOperations change the representation of a column value. A column
// carries at most one of them.
var shapeOperations = []Operation{OpWkt, OpWkb, OpDate, OpDatetime}

// JoinType is the SQL join type of a relation.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
)

// SqlQueryMapping is the relational join graph of one feature type.
//
// Tables[0] is the main table. Every other table has a Relations chain that
// starts at the main table. The mapping is read-only after Derive returns.
type SqlQueryMapping struct {
	// Name is the feature type name.
	Name string

	// Tables in rule order, main table first.
	Tables []*SqlQuerySchema

	// ValuePaths maps a target path to the column holding its value.
	ValuePaths map[string]ValueRef

	// Properties maps a target path to its schema property.
	Properties map[string]SchemaProperty
}

// ValueRef locates a column within a mapping.
type ValueRef struct {
	Table  int
	Column int
}

// SchemaProperty is the schema view of a mapped target path.
type SchemaProperty struct {
	Path string
	Type string
	Role string

	// Connector names the sub-decoder the value is read through, if any.
	Connector string

	// InArray is true when the property repeats within a feature.
	InArray bool

	// Table is the index of the owning table.
	Table int
}

// SqlQuerySchema is one table of a feature type.
type SqlQuerySchema struct {
	// Name is the SQL table name.
	Name string

	// FullPath is the normalized source path of the table rule.
	FullPath string

	// TargetPath is where the table's object (or array) sits in the feature.
	TargetPath []string

	// Type is the schema type of the table rule (FEATURE, OBJECT,
	// OBJECT_ARRAY, VALUE_ARRAY).
	Type string

	SortKey       string
	SortKeyUnique bool
	PrimaryKey    string

	// Filter restricts the rows of this table. Nil when unfiltered.
	Filter     cql.Expr
	FilterText string

	Columns []SqlQueryColumn

	// Relations is the join chain from the main table to this table.
	// Empty for the main table.
	Relations []SqlQueryJoin

	// Parent is the index of the nearest enclosing table, -1 for the main
	// table.
	Parent int

	// Multiple is true for OBJECT_ARRAY and VALUE_ARRAY tables.
	Multiple bool

	// ValueArray is true when the table holds the elements of a value array.
	ValueArray bool

	// InArray is true when this table or any enclosing table is multiple.
	InArray bool
}

// IsMain reports whether the table is the main table.
func (s *SqlQuerySchema) IsMain() bool {
	return len(s.Relations) == 0
}

// ChainLength is the number of tables joined to reach this table, including
// the main table and junctions.
func (s *SqlQuerySchema) ChainLength() int {
	return len(s.Relations) + 1
}

// SqlQueryColumn is one readable column of a table.
type SqlQueryColumn struct {
	// Name is the SQL column name. Constant columns get a synthetic name.
	Name string

	// Path is the target path of the value.
	Path []string

	// Type is the schema type of the value.
	Type string

	Role string

	Operations map[Operation][]string

	// ConnectorProperties are the values read out of a connector payload.
	ConnectorProperties []ConnectorProperty
}

// HasOperation reports whether the column carries op.
func (c SqlQueryColumn) HasOperation(op Operation) bool {
	_, ok := c.Operations[op]
	return ok
}

// Param returns the first parameter of op, or "".
func (c SqlQueryColumn) Param(op Operation) string {
	if p := c.Operations[op]; len(p) > 0 {
		return p[0]
	}
	return ""
}

// Shape returns the shape operation of the column, if any.
func (c SqlQueryColumn) Shape() (Operation, bool) {
	for _, op := range shapeOperations {
		if c.HasOperation(op) {
			return op, true
		}
	}
	return "", false
}

// IsGeometry reports whether the column holds a geometry.
func (c SqlQueryColumn) IsGeometry() bool {
	return c.HasOperation(OpWkt) || c.HasOperation(OpWkb)
}

// Connector returns the connector name, or "" for regular columns.
func (c SqlQueryColumn) Connector() string {
	return c.Param(OpConnector)
}

// PathString returns the dotted target path.
func (c SqlQueryColumn) PathString() string {
	return strings.Join(c.Path, ".")
}

// ConnectorProperty is a value nested inside a connector payload.
type ConnectorProperty struct {
	// Source is the key path inside the payload, relative to the parent.
	Source []string

	// Path is the target path of the value.
	Path []string

	Type string

	// Children are set for OBJECT and OBJECT_ARRAY properties.
	Children []ConnectorProperty
}

// SqlQueryJoin is one hop of a join chain.
type SqlQueryJoin struct {
	SourceTable string
	SourceField string
	TargetTable string
	TargetField string
	Type        JoinType

	// SortKey, SortKeyUnique and PrimaryKey describe the target table.
	SortKey       string
	SortKeyUnique bool
	PrimaryKey    string

	// Filter restricts rows of the target table. Nil when unfiltered.
	Filter     cql.Expr
	FilterText string

	// Junction is true when the target is a relation table that is not
	// itself a table of the feature type.
	Junction bool

	// Path is the source path prefix ending at the target table. It
	// identifies the join within a mapping.
	Path string
}

// Main returns the main table.
func (m *SqlQueryMapping) Main() *SqlQuerySchema {
	return m.Tables[0]
}

// Table returns the table with the given full path and its index.
func (m *SqlQueryMapping) Table(fullPath string) (*SqlQuerySchema, int, bool) {
	for i, t := range m.Tables {
		if t.FullPath == fullPath {
			return t, i, true
		}
	}
	return nil, -1, false
}

// Chain returns the indexes of the mapped tables on the join chain of table
// i, below the main table and ending with i itself. Junctions are skipped.
func (m *SqlQueryMapping) Chain(i int) []int {
	var chain []int
	for _, j := range m.Tables[i].Relations {
		if _, idx, ok := m.Table(j.Path); ok {
			chain = append(chain, idx)
		}
	}
	return chain
}

// Column resolves a target path to its table and column.
func (m *SqlQueryMapping) Column(path string) (*SqlQuerySchema, SqlQueryColumn, bool) {
	ref, ok := m.ValuePaths[path]
	if !ok {
		return nil, SqlQueryColumn{}, false
	}
	t := m.Tables[ref.Table]
	return t, t.Columns[ref.Column], true
}

// Relations returns the distinct joins of the mapping in derivation order.
func (m *SqlQueryMapping) Relations() []SqlQueryJoin {
	var joins []SqlQueryJoin
	seen := make(map[string]bool)
	for _, t := range m.Tables {
		for _, j := range t.Relations {
			if seen[j.Path] {
				continue
			}
			seen[j.Path] = true
			joins = append(joins, j)
		}
	}
	return joins
}

// Junctions returns the distinct junction joins of the mapping.
func (m *SqlQueryMapping) Junctions() []SqlQueryJoin {
	var out []SqlQueryJoin
	for _, j := range m.Relations() {
		if j.Junction {
			out = append(out, j)
		}
	}
	return out
}

// PropertyTypes returns the target path → schema type table used for type
// checking filters.
func (m *SqlQueryMapping) PropertyTypes() map[string]string {
	types := make(map[string]string, len(m.Properties))
	for path, p := range m.Properties {
		types[path] = p.Type
	}
	return types
}
