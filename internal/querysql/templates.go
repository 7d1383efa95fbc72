package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/mapping"
)

// RowNumberKey is the synthetic sort key column of tables whose declared
// sort key is not unique.
const RowNumberKey = "SKEY_RN"

// Options configures template derivation.
type Options struct {
	// ComputeNumberMatched enables the unwindowed count in meta queries.
	ComputeNumberMatched bool

	// NullOrder is dialect.NullsFirst, dialect.NullsLast or "".
	NullOrder string
}

// SortKey is an additional sort key on a main table property.
type SortKey struct {
	Property   string
	Descending bool
}

// Params are the per-request inputs of a template.
type Params struct {
	// Limit of root rows; 0 means unlimited.
	Limit  int64
	Offset int64

	// SortKeys order root rows before the natural sort key.
	SortKeys []SortKey

	// Filter is the user filter, or nil.
	Filter cql.Expr

	// MinKey and MaxKey bound the main table sort key in value queries.
	// Both are taken from the meta query result; nil disables the bound.
	MinKey any
	MaxKey any

	// CountSkipped requests numberSkipped in the meta query.
	CountSkipped bool

	// VirtualTables replaces table names with sub-selects.
	VirtualTables map[string]string
}

// Deriver builds query templates for mappings.
type Deriver struct {
	dialect dialect.Dialect
	opts    Options
}

// NewDeriver creates a Deriver for d.
func NewDeriver(d dialect.Dialect, opts Options) *Deriver {
	return &Deriver{dialect: d, opts: opts}
}

// Templates are the query templates of one feature type.
// They are immutable and safe for concurrent use.
type Templates struct {
	Mapping *mapping.SqlQueryMapping
	Meta    *MetaTemplate

	// Values holds one template per table, in mapping order.
	Values []*ValueTemplate
}

// Derive builds the meta template and one value template per table of m.
// Table filters are encoded up front so that a broken schema filter fails
// here instead of per request.
func (dr *Deriver) Derive(m *mapping.SqlQueryMapping) (*Templates, error) {
	if m == nil || len(m.Tables) == 0 {
		return nil, fmt.Errorf("mapping has no tables")
	}

	b := &builder{
		d:       dr.dialect,
		opts:    dr.opts,
		mapping: m,
		encoder: NewFilterEncoder(dr.dialect),
	}
	if _, err := b.mainFilter("A"); err != nil {
		return nil, fmt.Errorf("derive %s: %w", m.Name, err)
	}

	t := &Templates{
		Mapping: m,
		Meta:    &MetaTemplate{b: b},
	}
	for i, table := range m.Tables {
		v, err := b.valueTemplate(i, table)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", m.Name, err)
		}
		t.Values = append(t.Values, v)
	}
	return t, nil
}

// builder holds what every template of a mapping shares.
type builder struct {
	d       dialect.Dialect
	opts    Options
	mapping *mapping.SqlQueryMapping
	encoder *FilterEncoder
}

// mainFilter renders the schema filter of the main table, or "".
func (b *builder) mainFilter(alias string) (string, error) {
	main := b.mapping.Main()
	return b.encoder.EncodeTableFilter(main.Filter, main, alias)
}

// conditions returns the main table filter and the user filter for alias.
func (b *builder) conditions(p Params, alias string) ([]string, error) {
	var conds []string
	table, err := b.mainFilter(alias)
	if err != nil {
		return nil, err
	}
	if table != "" {
		conds = append(conds, table)
	}
	user, err := b.encoder.Encode(p.Filter, b.mapping, alias)
	if err != nil {
		return nil, err
	}
	if user != "" {
		conds = append(conds, user)
	}
	return conds, nil
}

// tableRef renders a table reference with alias. Virtual tables replace the
// name; a non-unique sort key wraps the table to add a row number key.
func (b *builder) tableRef(name, sortKey string, unique bool, alias string, virtual map[string]string) string {
	source := b.d.QuoteIdentifier(name)
	if sql, ok := virtual[name]; ok {
		source = "(" + sql + ")"
	}
	if unique {
		return source + " " + alias
	}
	return fmt.Sprintf("(SELECT X.*, ROW_NUMBER() OVER (ORDER BY X.%s) AS %s FROM %s X) %s",
		b.d.QuoteIdentifier(sortKey), RowNumberKey, source, alias)
}

func (b *builder) mainRef(alias string, virtual map[string]string) string {
	main := b.mapping.Main()
	return b.tableRef(main.Name, main.SortKey, main.SortKeyUnique, alias, virtual)
}

// keyColumn returns the sort key column of a table.
func (b *builder) keyColumn(sortKey string, unique bool) string {
	if unique {
		return b.d.QuoteIdentifier(sortKey)
	}
	return RowNumberKey
}

func (b *builder) mainKey(alias string) string {
	main := b.mapping.Main()
	return alias + "." + b.keyColumn(main.SortKey, main.SortKeyUnique)
}

// customKeys resolves additional sort keys to main table expressions.
func (b *builder) customKeys(p Params, alias string) ([]string, error) {
	keys := make([]string, len(p.SortKeys))
	for i, k := range p.SortKeys {
		t, col, ok := b.mapping.Column(k.Property)
		if !ok || !t.IsMain() {
			return nil, fmt.Errorf("sort key %q is not a property of the main table", k.Property)
		}
		keys[i] = columnSQL(b.d, col, alias)
	}
	return keys, nil
}

// direction renders the ordering suffix of a sort key.
func (b *builder) direction(desc bool) string {
	if desc {
		return " DESC" + b.d.NullsOrder(b.opts.NullOrder)
	}
	return b.d.NullsOrder(b.opts.NullOrder)
}

// paging renders LIMIT/OFFSET for p.
func (b *builder) paging(p Params) string {
	if p.Limit > 0 {
		return b.d.LimitAndOffset(p.Limit, p.Offset)
	}
	return b.d.Offset(p.Offset)
}

// keyLiteral renders a keyset bound taken from a meta query result.
func (b *builder) keyLiteral(v any) string {
	switch k := v.(type) {
	case int64:
		return strconv.FormatInt(k, 10)
	case int:
		return strconv.Itoa(k)
	case int32:
		return strconv.FormatInt(int64(k), 10)
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case []byte:
		return b.d.EscapeString(string(k))
	case string:
		return b.d.EscapeString(k)
	default:
		return b.d.EscapeString(fmt.Sprint(k))
	}
}

// windowed renders the root row window: the main table filtered, ordered by
// custom keys then the natural key, and paged. The select list holds the
// natural key as SKEY and custom keys as CSKEY_i.
func (b *builder) windowed(p Params, paging string) (string, error) {
	keys, err := b.customKeys(p, "A")
	if err != nil {
		return "", err
	}
	conds, err := b.conditions(p, "A")
	if err != nil {
		return "", err
	}

	sel := []string{b.mainKey("A") + " AS SKEY"}
	var order []string
	for i, k := range keys {
		sel = append(sel, fmt.Sprintf("%s AS CSKEY_%d", k, i))
		order = append(order, fmt.Sprintf("CSKEY_%d%s", i, b.direction(p.SortKeys[i].Descending)))
	}
	order = append(order, "SKEY"+b.direction(false))

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(sel, ", "), b.mainRef("A", p.VirtualTables))
	writeWhere(&sb, conds)
	sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	sb.WriteString(paging)
	return sb.String(), nil
}

func writeWhere(sb *strings.Builder, conds []string) {
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
}

// MetaTemplate renders the meta query of a feature type.
type MetaTemplate struct {
	b *builder
}

// SQL renders the meta query. It returns one row with the columns minKey,
// maxKey, numberReturned, numberMatched and numberSkipped. numberMatched is
// -1 unless counting is enabled; numberSkipped is -1 unless requested.
func (t *MetaTemplate) SQL(p Params) (string, error) {
	b := t.b

	window, err := b.windowed(p, b.paging(p))
	if err != nil {
		return "", err
	}
	nr := fmt.Sprintf("NR AS (SELECT MIN(SKEY) AS minKey, MAX(SKEY) AS maxKey, COUNT(*) AS numberReturned FROM (%s) AS IA)", window)

	nm := "NM AS (" + b.d.NoTable("SELECT -1 AS numberMatched") + ")"
	if b.opts.ComputeNumberMatched {
		all, err := b.windowed(Params{Filter: p.Filter, VirtualTables: p.VirtualTables}, "")
		if err != nil {
			return "", err
		}
		nm = fmt.Sprintf("NM AS (SELECT COUNT(*) AS numberMatched FROM (%s) AS IM)", all)
	}

	var ns string
	switch {
	case p.CountSkipped && p.Offset > 0:
		skipped, err := b.windowed(p, b.d.Limit(p.Offset))
		if err != nil {
			return "", err
		}
		ns = fmt.Sprintf("NS AS (SELECT CASE WHEN NR.numberReturned = 0 THEN (SELECT COUNT(*) FROM (%s) AS IS2) ELSE %d END AS numberSkipped FROM NR)", skipped, p.Offset)
	case p.CountSkipped:
		ns = "NS AS (" + b.d.NoTable("SELECT 0 AS numberSkipped") + ")"
	default:
		ns = "NS AS (" + b.d.NoTable("SELECT -1 AS numberSkipped") + ")"
	}

	return fmt.Sprintf("WITH %s, %s, %s SELECT NR.minKey, NR.maxKey, NR.numberReturned, NM.numberMatched, NS.numberSkipped FROM NR, NM, NS",
		nr, nm, ns), nil
}

// ValueTemplate renders the value query of one table.
//
// Result rows hold, in order: one CSKEY column per Params.SortKeys entry,
// Keys sort key columns (one per join chain position, main table first),
// then one column per entry of Columns.
type ValueTemplate struct {
	Table      *mapping.SqlQuerySchema
	TableIndex int

	// Keys is the number of sort key columns.
	Keys int

	Columns []mapping.SqlQueryColumn

	b *builder

	// keys are the sort key expressions by chain position.
	keys []string

	// joins are the join conditions by chain position, starting at 1.
	joins []string

	// selects are the rendered column expressions.
	selects []string
}

func (b *builder) valueTemplate(idx int, table *mapping.SqlQuerySchema) (*ValueTemplate, error) {
	v := &ValueTemplate{
		Table:      table,
		TableIndex: idx,
		Keys:       table.ChainLength(),
		Columns:    table.Columns,
		b:          b,
	}

	v.keys = append(v.keys, b.mainKey("A"))
	for k, j := range table.Relations {
		alias := tableAlias(k + 1)
		v.keys = append(v.keys, alias+"."+b.keyColumn(j.SortKey, j.SortKeyUnique))

		cond, err := joinCondition(b.d, j, tableAlias(k), alias)
		if err != nil {
			return nil, err
		}
		v.joins = append(v.joins, cond)
	}

	alias := tableAlias(table.ChainLength() - 1)
	for _, col := range table.Columns {
		v.selects = append(v.selects, valueExpr(col).render(b.d, alias))
	}
	return v, nil
}

// CustomKeys returns the number of CSKEY columns of rows rendered for p.
func (v *ValueTemplate) CustomKeys(p Params) int {
	return len(p.SortKeys)
}

// SQL renders the value query for p.
//
// The root rows are restricted in one of three ways: an id filter alone; a
// keyset bound on the main sort key when the window is given by MinKey and
// MaxKey and no custom sort keys apply; or a sub-query that pages the main
// table before the joins fan rows out.
func (v *ValueTemplate) SQL(p Params) (string, error) {
	b := v.b

	keys, err := b.customKeys(p, "A")
	if err != nil {
		return "", err
	}

	var sel, order []string
	for i, k := range keys {
		sel = append(sel, fmt.Sprintf("%s AS CSKEY_%d", k, i))
		order = append(order, fmt.Sprintf("CSKEY_%d%s", i, b.direction(p.SortKeys[i].Descending)))
	}
	for i, k := range v.keys {
		sel = append(sel, fmt.Sprintf("%s AS SKEY_%d", k, i))
		order = append(order, fmt.Sprintf("SKEY_%d%s", i, b.direction(false)))
	}
	sel = append(sel, v.selects...)

	conds, err := v.where(p)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(sel, ", "), b.mainRef("A", p.VirtualTables))
	for k, j := range v.Table.Relations {
		fmt.Fprintf(&sb, " %s %s ON (%s)", joinKeyword(j),
			b.tableRef(j.TargetTable, j.SortKey, j.SortKeyUnique, tableAlias(k+1), p.VirtualTables), v.joins[k])
	}
	writeWhere(&sb, conds)
	sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	return sb.String(), nil
}

func (v *ValueTemplate) where(p Params) ([]string, error) {
	b := v.b
	conds, err := b.conditions(p, "A")
	if err != nil {
		return nil, err
	}

	switch {
	case p.Filter != nil && IsIDFilter(p.Filter):
		return conds, nil
	case len(p.SortKeys) == 0 && p.MinKey != nil && p.MaxKey != nil:
		key := b.mainKey("A")
		return append(conds,
			key+" >= "+b.keyLiteral(p.MinKey),
			key+" <= "+b.keyLiteral(p.MaxKey)), nil
	case p.Limit > 0 || p.Offset > 0:
		sub, err := v.pagedRoots(p)
		if err != nil {
			return nil, err
		}
		main := b.mapping.Main()
		// the main table filter and user filter apply inside the sub-query
		table, err := b.mainFilter("A")
		if err != nil {
			return nil, err
		}
		var outer []string
		if table != "" {
			outer = append(outer, table)
		}
		return append(outer, fmt.Sprintf("A.%s IN (%s)", b.d.QuoteIdentifier(main.PrimaryKey), sub)), nil
	default:
		return conds, nil
	}
}

// pagedRoots renders the primary keys of the paged root rows.
func (v *ValueTemplate) pagedRoots(p Params) (string, error) {
	b := v.b
	keys, err := b.customKeys(p, "AA")
	if err != nil {
		return "", err
	}
	conds, err := b.conditions(p, "AA")
	if err != nil {
		return "", err
	}

	var order []string
	for i, k := range keys {
		order = append(order, k+b.direction(p.SortKeys[i].Descending))
	}
	order = append(order, b.mainKey("AA")+b.direction(false))

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT AA.%s FROM %s", b.d.QuoteIdentifier(b.mapping.Main().PrimaryKey), b.mainRef("AA", p.VirtualTables))
	writeWhere(&sb, conds)
	sb.WriteString(" ORDER BY " + strings.Join(order, ", "))
	sb.WriteString(b.paging(p))
	return sb.String(), nil
}
