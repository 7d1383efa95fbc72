package mapping

import (
	"fmt"
	"strings"

	"github.com/roach88/featsql/internal/cql"
)

// Derive builds the join graph of the feature type name from its rules.
//
// The rules are scanned once, in order. Tables must be declared before their
// columns and before tables nested below them. Any structural inconsistency
// yields a *DerivationError.
func Derive(name string, rules []Rule, opts Options) (*SqlQueryMapping, error) {
	if len(rules) == 0 {
		return nil, &DerivationError{Code: ErrNoRules, Type: name, Message: "no mapping rules"}
	}

	d := &deriver{
		name:   name,
		opts:   opts.withDefaults(),
		tables: make(map[string]int),
		mapping: &SqlQueryMapping{
			Name:       name,
			ValuePaths: make(map[string]ValueRef),
			Properties: make(map[string]SchemaProperty),
		},
	}

	for i, r := range rules {
		segs, err := parsePath(r.Source)
		if err != nil {
			return nil, d.fail(ErrInvalidPath, i, r, err.Error())
		}

		table := isTableRule(segs)
		if i == 0 && !table {
			return nil, d.fail(ErrFirstNotTable, i, r, "first rule must map the main table")
		}

		if table {
			err = d.addTable(i, r, segs)
		} else {
			err = d.addColumn(i, r, segs)
		}
		if err != nil {
			return nil, err
		}
	}

	return d.mapping, nil
}

// isTableRule reports whether a parsed source path denotes a table: its
// last segment carries a join condition, or it is a single plain segment.
func isTableRule(segs []segment) bool {
	last := segs[len(segs)-1]
	if last.IsJoin() {
		return true
	}
	return len(segs) == 1 && !last.IsConstant && last.Connector == "" && last.Flags[FlagExpression] == ""
}

type deriver struct {
	name    string
	opts    Options
	mapping *SqlQueryMapping

	// tables maps a full path to its table index.
	tables map[string]int

	// connectors maps table full path + connector segment to a column.
	connectors map[string]ValueRef
}

func (d *deriver) fail(code string, i int, r Rule, msg string) *DerivationError {
	return &DerivationError{Code: code, Type: d.name, Rule: i, Source: r.Source, Message: msg}
}

func (d *deriver) addTable(i int, r Rule, segs []segment) error {
	for k, s := range segs {
		if k > 0 && !s.IsJoin() {
			return d.fail(ErrInvalidPath, i, r, fmt.Sprintf("segment %q of a table path needs a join condition", s.Raw))
		}
		if s.IsConstant || s.Connector != "" {
			return d.fail(ErrInvalidPath, i, r, fmt.Sprintf("segment %q cannot be a table", s.Raw))
		}
	}

	fullPath := joinSegments(segs)
	if _, dup := d.tables[fullPath]; dup {
		return d.fail(ErrDuplicateTable, i, r, fmt.Sprintf("table %s is mapped twice", fullPath))
	}

	last := segs[len(segs)-1]
	unique, err := last.sortKeyUnique()
	if err != nil {
		return d.fail(ErrInvalidPath, i, r, err.Error())
	}
	filterText, filter, err := parseFilter(last)
	if err != nil {
		return d.fail(ErrInvalidFilter, i, r, err.Error())
	}

	schema := &SqlQuerySchema{
		Name:          last.Name,
		FullPath:      fullPath,
		TargetPath:    splitTarget(r.Target),
		Type:          strings.ToUpper(r.Type),
		SortKey:       last.sortKey(),
		SortKeyUnique: unique,
		PrimaryKey:    last.primaryKey(),
		Filter:        filter,
		FilterText:    filterText,
		Parent:        -1,
		Multiple:      isMultiple(r.Type),
		ValueArray:    strings.EqualFold(r.Type, TypeValueArray),
	}

	if len(d.mapping.Tables) > 0 {
		main := d.mapping.Tables[0]
		if segs[0].Raw != strings.TrimPrefix(main.FullPath, "/") {
			return d.fail(ErrColumnOutsideTable, i, r, fmt.Sprintf("table is not below the main table %s", main.FullPath))
		}
		if len(segs) == 1 {
			return d.fail(ErrColumnOutsideTable, i, r, "only the first rule may map a main table")
		}

		relations, parent, err := d.relations(segs)
		if err != nil {
			return d.fail(ErrInvalidFilter, i, r, err.Error())
		}
		schema.Relations = relations
		schema.Parent = parent
		schema.InArray = schema.Multiple || d.mapping.Tables[parent].InArray
	}

	idx := len(d.mapping.Tables)
	d.tables[fullPath] = idx
	d.mapping.Tables = append(d.mapping.Tables, schema)

	if r.Target != "" {
		d.addProperty(r.Target, SchemaProperty{
			Path:    r.Target,
			Type:    schema.Type,
			Role:    r.Role,
			InArray: schema.InArray,
			Table:   idx,
		})
	}
	return nil
}

// relations builds one inner join per adjacent pair of segments and returns
// them with the index of the nearest registered ancestor table. A hop whose
// target prefix is not a registered table, and that is not the last hop, is
// a junction.
func (d *deriver) relations(segs []segment) ([]SqlQueryJoin, int, error) {
	parent := 0
	joins := make([]SqlQueryJoin, 0, len(segs)-1)
	for k := 1; k < len(segs); k++ {
		prev, cur := segs[k-1], segs[k]
		prefix := joinSegments(segs[:k+1])

		unique, err := cur.sortKeyUnique()
		if err != nil {
			return nil, 0, err
		}
		filterText, filter, err := parseFilter(cur)
		if err != nil {
			return nil, 0, err
		}

		idx, registered := d.tables[prefix]
		last := k == len(segs)-1
		if registered && !last {
			parent = idx
		}

		joins = append(joins, SqlQueryJoin{
			SourceTable:   prev.Name,
			SourceField:   cur.JoinSource,
			TargetTable:   cur.Name,
			TargetField:   cur.JoinTarget,
			Type:          JoinInner,
			SortKey:       cur.sortKey(),
			SortKeyUnique: unique,
			PrimaryKey:    cur.primaryKey(),
			Filter:        filter,
			FilterText:    filterText,
			// every branch through an unmapped table flags the hop
			Junction:      !last && !registered,
			Path:          prefix,
		})
	}
	return joins, parent, nil
}

func parseFilter(s segment) (string, cql.Expr, error) {
	text, ok := s.Flags[FlagFilter]
	if !ok || text == "" {
		return "", nil, nil
	}
	expr, err := cql.ParseJSON([]byte(text))
	if err != nil {
		return "", nil, fmt.Errorf("filter of %s: %w", s.Name, err)
	}
	return text, expr, nil
}

// owner returns the number of leading segments that form the owning table
// path of a column rule.
func owner(segs []segment) int {
	n := 1
	for k, s := range segs {
		if s.IsJoin() {
			n = k + 1
		}
	}
	return n
}

func (d *deriver) addColumn(i int, r Rule, segs []segment) error {
	n := owner(segs)
	tablePath := joinSegments(segs[:n])
	tableIdx, ok := d.tables[tablePath]
	if !ok {
		return d.fail(ErrColumnOutsideTable, i, r, fmt.Sprintf("table %s is not mapped", tablePath))
	}
	table := d.mapping.Tables[tableIdx]
	rest := segs[n:]

	if len(rest) > 1 {
		if rest[0].Connector == "" {
			return d.fail(ErrInvalidPath, i, r, fmt.Sprintf("%q is neither a table nor a connector", rest[0].Raw))
		}
		return d.addConnectorProperty(i, r, tablePath+"/"+rest[0].Raw, rest[1:])
	}

	col := rest[0]
	column := SqlQueryColumn{
		Name:       col.Name,
		Path:       splitTarget(r.Target),
		Type:       strings.ToUpper(r.Type),
		Role:       r.Role,
		Operations: d.operations(col, r),
	}
	if col.IsConstant {
		column.Name = fmt.Sprintf("constant_%d", i)
	}

	colIdx := len(table.Columns)
	table.Columns = append(table.Columns, column)
	ref := ValueRef{Table: tableIdx, Column: colIdx}

	if col.Connector != "" {
		if d.connectors == nil {
			d.connectors = make(map[string]ValueRef)
		}
		d.connectors[tablePath+"/"+col.Raw] = ref
	}

	if r.Target != "" {
		if _, exists := d.mapping.ValuePaths[r.Target]; !exists {
			d.mapping.ValuePaths[r.Target] = ref
		}
		d.addProperty(r.Target, SchemaProperty{
			Path:      r.Target,
			Type:      column.Type,
			Role:      r.Role,
			Connector: col.Connector,
			InArray:   table.InArray,
			Table:     tableIdx,
		})
	}
	return nil
}

// operations derives the rendering operations of a column from its segment
// and type.
func (d *deriver) operations(s segment, r Rule) map[Operation][]string {
	ops := make(map[Operation][]string)
	switch {
	case s.IsConstant:
		ops[OpConstant] = []string{s.Constant}
	case s.Connector != "":
		ops[OpConnector] = []string{s.Connector}
	}
	if expr, ok := s.Flags[FlagExpression]; ok {
		ops[OpExpression] = []string{expr}
	}
	if s.Connector != "" {
		return ops
	}

	switch strings.ToUpper(r.Type) {
	case cql.SchemaGeometry:
		ops[d.opts.GeometryEncoding] = nil
		if d.opts.ForcePolygonCCW {
			ops[OpForcePolygonCCW] = nil
		}
		if d.opts.LinearizeCurves {
			ops[OpLinearizeCurves] = nil
		}
	case cql.SchemaDatetime:
		ops[OpDatetime] = nil
	case cql.SchemaDate:
		ops[OpDate] = nil
	}
	return ops
}

// addConnectorProperty attaches a value read out of a connector payload to
// its connector column. Object properties become parents of the properties
// nested below them.
func (d *deriver) addConnectorProperty(i int, r Rule, connectorPath string, rel []segment) error {
	ref, ok := d.connectors[connectorPath]
	if !ok {
		return d.fail(ErrMissingConnector, i, r, fmt.Sprintf("connector %s is not mapped", connectorPath))
	}
	keys := make([]string, len(rel))
	for k, s := range rel {
		if s.IsJoin() || s.IsConstant || s.Connector != "" || len(s.Flags) > 0 {
			return d.fail(ErrInvalidPath, i, r, fmt.Sprintf("segment %q is not a plain key", s.Raw))
		}
		keys[k] = s.Name
	}

	table := d.mapping.Tables[ref.Table]
	col := &table.Columns[ref.Column]
	prop := ConnectorProperty{Path: splitTarget(r.Target), Type: strings.ToUpper(r.Type)}

	siblings := &col.ConnectorProperties
	inArray := table.InArray
	offset := 0
	for {
		parent := findParent(*siblings, keys[offset:])
		if parent == nil {
			break
		}
		if isMultiple(parent.Type) {
			inArray = true
		}
		offset += len(parent.Source)
		siblings = &parent.Children
	}
	prop.Source = keys[offset:]
	*siblings = append(*siblings, prop)

	if r.Target != "" {
		d.addProperty(r.Target, SchemaProperty{
			Path:      r.Target,
			Type:      prop.Type,
			Role:      r.Role,
			Connector: col.Connector(),
			InArray:   inArray || isMultiple(prop.Type),
			Table:     ref.Table,
		})
	}
	return nil
}

// findParent returns the object property whose key path is a proper prefix
// of keys.
func findParent(props []ConnectorProperty, keys []string) *ConnectorProperty {
	for k := range props {
		p := &props[k]
		if p.Type != TypeObject && p.Type != TypeObjectArray {
			continue
		}
		if len(p.Source) < len(keys) && hasPrefix(keys, p.Source) {
			return p
		}
	}
	return nil
}

func hasPrefix(s, prefix []string) bool {
	for k := range prefix {
		if s[k] != prefix[k] {
			return false
		}
	}
	return true
}

// addProperty records the first schema property registered for a path.
func (d *deriver) addProperty(path string, p SchemaProperty) {
	if _, exists := d.mapping.Properties[path]; !exists {
		d.mapping.Properties[path] = p
	}
}
