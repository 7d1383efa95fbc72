package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/featsql/internal/cql"
	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/mapping"
)

// FilterEncoder renders CQL2 expressions as SQL predicates.
//
// Properties of the main table render as alias.column. A predicate over
// properties of a joined table renders as a sub-query on the main table's
// primary key, so the outer query never fans out:
//
//	A.id IN (SELECT AA.id FROM building AA JOIN part AB ON (AA.id=AB.building_id) WHERE AB.floors > 2)
//
// Thread-safety: a FilterEncoder holds no state besides its dialect and is
// safe for concurrent use.
type FilterEncoder struct {
	Dialect dialect.Dialect
}

// NewFilterEncoder creates a FilterEncoder for d.
func NewFilterEncoder(d dialect.Dialect) *FilterEncoder {
	return &FilterEncoder{Dialect: d}
}

// Encode renders expr against the properties of m, with alias naming the
// main table in the surrounding query.
func (e *FilterEncoder) Encode(expr cql.Expr, m *mapping.SqlQueryMapping, alias string) (string, error) {
	if expr == nil {
		return "", nil
	}
	enc := &encoding{d: e.Dialect, mapping: m, alias: alias}
	return enc.predicate(expr)
}

// EncodeTableFilter renders expr with properties naming columns of table
// directly, as used by schema-declared table filters.
func (e *FilterEncoder) EncodeTableFilter(expr cql.Expr, table *mapping.SqlQuerySchema, alias string) (string, error) {
	if expr == nil {
		return "", nil
	}
	enc := &encoding{d: e.Dialect, alias: alias, table: table}
	return enc.render(expr, enc.tableResolver())
}

// IsIDFilter reports whether expr restricts the main table to explicit ids:
// _ID_ IN (literals) or _ID_ = literal.
func IsIDFilter(expr cql.Expr) bool {
	switch n := expr.(type) {
	case cql.In:
		if !isIDProperty(n.Value) || len(n.List) == 0 {
			return false
		}
		for _, el := range n.List {
			if _, ok := el.(cql.ScalarLiteral); !ok {
				return false
			}
		}
		return true
	case cql.Comparison:
		_, lit := n.Right.(cql.ScalarLiteral)
		return n.Op == cql.Eq && isIDProperty(n.Left) && lit
	}
	return false
}

func isIDProperty(e cql.Expr) bool {
	p, ok := e.(cql.Property)
	return ok && p.Name == cql.IDPlaceholder
}

// resolver maps a property name to its SQL column expression.
type resolver func(name string) (string, error)

type encoding struct {
	d       dialect.Dialect
	mapping *mapping.SqlQueryMapping
	alias   string
	table   *mapping.SqlQuerySchema
}

func (enc *encoding) fail(e cql.Expr, format string, args ...any) error {
	return &EncodeError{Expression: cql.Text(e), Message: fmt.Sprintf(format, args...)}
}

// predicate renders a boolean expression. Logical operators recurse so that
// every leaf predicate picks its own table.
func (enc *encoding) predicate(e cql.Expr) (string, error) {
	switch n := e.(type) {
	case cql.And:
		return enc.logical(n.Args, " AND ")
	case cql.Or:
		return enc.logical(n.Args, " OR ")
	case cql.Not:
		inner, err := enc.predicate(n.Arg)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	}

	tables, err := enc.tablesOf(e)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return enc.render(e, enc.mainResolver(enc.alias))
	}

	target, err := enc.deepest(e, tables)
	if err != nil {
		return "", err
	}
	if op, ok := e.(cql.ArrayOp); ok && target.ValueArray {
		return enc.arrayPredicate(op, target)
	}
	return enc.joinedPredicate(e, target)
}

func (enc *encoding) logical(args []cql.Expr, sep string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("empty logical expression")
	}
	parts := make([]string, len(args))
	for i, a := range args {
		p, err := enc.predicate(a)
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// tablesOf returns the non-main tables referenced by e, in first-seen order.
func (enc *encoding) tablesOf(e cql.Expr) ([]*mapping.SqlQuerySchema, error) {
	var tables []*mapping.SqlQuerySchema
	seen := make(map[*mapping.SqlQuerySchema]bool)
	for _, name := range cql.Properties(e) {
		if name == cql.IDPlaceholder {
			continue
		}
		t, _, ok := enc.mapping.Column(name)
		if !ok {
			prop, known := enc.mapping.Properties[name]
			if !known {
				return nil, enc.fail(e, "unknown property %q", name)
			}
			t = enc.mapping.Tables[prop.Table]
		}
		if t.IsMain() || seen[t] {
			continue
		}
		seen[t] = true
		tables = append(tables, t)
	}
	return tables, nil
}

// deepest returns the table whose join chain contains all the given tables.
func (enc *encoding) deepest(e cql.Expr, tables []*mapping.SqlQuerySchema) (*mapping.SqlQuerySchema, error) {
	deepest := tables[0]
	for _, t := range tables[1:] {
		if t.ChainLength() > deepest.ChainLength() {
			deepest = t
		}
	}
	for _, t := range tables {
		if !onChain(deepest, t) {
			return nil, enc.fail(e, "properties of %s and %s cannot be combined in one predicate", deepest.Name, t.Name)
		}
	}
	return deepest, nil
}

// onChain reports whether x is t or an ancestor on t's join chain.
func onChain(t, x *mapping.SqlQuerySchema) bool {
	if x.IsMain() || x == t {
		return true
	}
	pos := x.ChainLength() - 2
	return pos < len(t.Relations) && t.Relations[pos].Path == x.FullPath
}

// joinedPredicate wraps a predicate over a joined table in a sub-query on
// the main table's primary key.
func (enc *encoding) joinedPredicate(e cql.Expr, target *mapping.SqlQuerySchema) (string, error) {
	inner, err := enc.render(e, enc.chainResolver(target))
	if err != nil {
		return "", err
	}
	from, err := enc.chainFrom(target)
	if err != nil {
		return "", err
	}
	main := enc.mapping.Main()
	pk := enc.d.QuoteIdentifier(main.PrimaryKey)
	return fmt.Sprintf("%s.%s IN (SELECT %s.%s FROM %s WHERE %s)",
		enc.alias, pk, enc.subAlias(0), pk, from, inner), nil
}

// chainFrom renders the FROM clause joining the main table to target with
// sub-query aliases AA, AB, ...
func (enc *encoding) chainFrom(target *mapping.SqlQuerySchema) (string, error) {
	main := enc.mapping.Main()
	var b strings.Builder
	b.WriteString(enc.d.QuoteIdentifier(main.Name) + " " + enc.subAlias(0))
	for k, j := range target.Relations {
		cond, err := joinCondition(enc.d, j, enc.subAlias(k), enc.subAlias(k+1))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " %s %s %s ON (%s)", joinKeyword(j), enc.d.QuoteIdentifier(j.TargetTable), enc.subAlias(k+1), cond)
	}
	return b.String(), nil
}

// joinCondition renders the ON condition of j, including the target
// table's filter.
func joinCondition(d dialect.Dialect, j mapping.SqlQueryJoin, source, target string) (string, error) {
	cond := fmt.Sprintf("%s.%s=%s.%s", source, d.QuoteIdentifier(j.SourceField), target, d.QuoteIdentifier(j.TargetField))
	if j.Filter == nil {
		return cond, nil
	}
	enc := &encoding{d: d, alias: target}
	filter, err := enc.render(j.Filter, enc.tableResolver())
	if err != nil {
		return "", fmt.Errorf("filter of %s: %w", j.TargetTable, err)
	}
	return cond + " AND " + filter, nil
}

func joinKeyword(j mapping.SqlQueryJoin) string {
	if j.Type == mapping.JoinLeft {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// arrayPredicate renders an array operator over a value-array table as a
// grouped sub-query.
func (enc *encoding) arrayPredicate(op cql.ArrayOp, target *mapping.SqlQuerySchema) (string, error) {
	prop, lit, operator, err := arrayOperands(op)
	if err != nil {
		return "", enc.fail(op, "%v", err)
	}
	resolve := enc.chainResolver(target)
	col, err := resolve(prop.Name)
	if err != nil {
		return "", err
	}

	values := make([]string, len(lit.Elems))
	distinct := make(map[string]bool)
	for i, el := range lit.Elems {
		v, err := enc.render(el, resolve)
		if err != nil {
			return "", err
		}
		values[i] = v
		distinct[v] = true
	}
	if len(values) == 0 {
		return "", enc.fail(op, "array operand is empty")
	}
	in := col + " IN (" + strings.Join(values, ", ") + ")"

	contains := fmt.Sprintf("COUNT(DISTINCT CASE WHEN %s THEN %s END) = %d", in, col, len(distinct))
	containedBy := fmt.Sprintf("SUM(CASE WHEN %s THEN 0 ELSE 1 END) = 0", in)

	var having string
	switch operator {
	case cql.AContains:
		having = contains
	case cql.AContainedBy:
		having = containedBy
	case cql.AEquals:
		having = contains + " AND " + containedBy
	case cql.AOverlaps:
		having = fmt.Sprintf("SUM(CASE WHEN %s THEN 1 ELSE 0 END) > 0", in)
	default:
		return "", enc.fail(op, "unsupported array operator %s", operator)
	}

	from, err := enc.chainFrom(target)
	if err != nil {
		return "", err
	}
	pk := enc.d.QuoteIdentifier(enc.mapping.Main().PrimaryKey)
	return fmt.Sprintf("%s.%s IN (SELECT %s.%s FROM %s WHERE %s IS NOT NULL GROUP BY %s.%s HAVING %s)",
		enc.alias, pk, enc.subAlias(0), pk, from, col, enc.subAlias(0), pk, having), nil
}

// arrayOperands normalizes an array operation to property OP literal,
// flipping containment when the literal comes first.
func arrayOperands(op cql.ArrayOp) (cql.Property, cql.ArrayLiteral, cql.ArrayOperator, error) {
	if p, ok := op.Left.(cql.Property); ok {
		lit, ok := op.Right.(cql.ArrayLiteral)
		if !ok {
			return p, lit, op.Op, fmt.Errorf("second operand must be an array literal")
		}
		return p, lit, op.Op, nil
	}
	if p, ok := op.Right.(cql.Property); ok {
		lit, ok := op.Left.(cql.ArrayLiteral)
		if !ok {
			return p, lit, op.Op, fmt.Errorf("first operand must be an array literal")
		}
		switch op.Op {
		case cql.AContains:
			return p, lit, cql.AContainedBy, nil
		case cql.AContainedBy:
			return p, lit, cql.AContains, nil
		}
		return p, lit, op.Op, nil
	}
	return cql.Property{}, cql.ArrayLiteral{}, op.Op, fmt.Errorf("one operand must be a property")
}

// mainResolver resolves properties of the main table against alias.
func (enc *encoding) mainResolver(alias string) resolver {
	return func(name string) (string, error) {
		main := enc.mapping.Main()
		if name == cql.IDPlaceholder {
			return alias + "." + enc.d.QuoteIdentifier(main.PrimaryKey), nil
		}
		t, col, ok := enc.mapping.Column(name)
		if !ok || !t.IsMain() {
			return "", fmt.Errorf("property %q is not a column of %s", name, main.Name)
		}
		return columnSQL(enc.d, col, alias), nil
	}
}

// chainResolver resolves properties of target and its chain ancestors to
// the sub-query aliases of their chain positions.
func (enc *encoding) chainResolver(target *mapping.SqlQuerySchema) resolver {
	return func(name string) (string, error) {
		if name == cql.IDPlaceholder {
			return enc.subAlias(0) + "." + enc.d.QuoteIdentifier(enc.mapping.Main().PrimaryKey), nil
		}
		t, col, ok := enc.mapping.Column(name)
		if !ok {
			return "", fmt.Errorf("property %q has no column", name)
		}
		if !onChain(target, t) {
			return "", fmt.Errorf("property %q is not on the join chain of %s", name, target.Name)
		}
		return columnSQL(enc.d, col, enc.subAlias(t.ChainLength()-1)), nil
	}
}

// tableResolver resolves properties as plain column names of one table.
func (enc *encoding) tableResolver() resolver {
	return func(name string) (string, error) {
		return enc.alias + "." + enc.d.QuoteIdentifier(name), nil
	}
}

// render renders e with properties resolved by resolve.
func (enc *encoding) render(e cql.Expr, resolve resolver) (string, error) {
	r := func(x cql.Expr) (string, error) { return enc.render(x, resolve) }

	switch n := e.(type) {
	case cql.And:
		return enc.joined(n.Args, " AND ", r)
	case cql.Or:
		return enc.joined(n.Args, " OR ", r)
	case cql.Not:
		inner, err := r(n.Arg)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case cql.Comparison:
		if isIDProperty(n.Left) {
			return enc.idComparison(n, resolve)
		}
		return enc.binary(r, n.Left, string(n.Op), n.Right)
	case cql.Like:
		return enc.binary(r, n.Value, "LIKE", n.Pattern)
	case cql.Between:
		v, err := r(n.Value)
		if err != nil {
			return "", err
		}
		lo, err := r(n.Lower)
		if err != nil {
			return "", err
		}
		hi, err := r(n.Upper)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", v, lo, hi), nil
	case cql.In:
		return enc.in(n, resolve)
	case cql.IsNull:
		v, err := r(n.Arg)
		if err != nil {
			return "", err
		}
		return v + " IS NULL", nil
	case cql.Casei:
		v, err := r(n.Arg)
		if err != nil {
			return "", err
		}
		return "LOWER(" + v + ")", nil
	case cql.Accenti:
		v, err := r(n.Arg)
		if err != nil {
			return "", err
		}
		return enc.d.Unaccent(v), nil
	case cql.TemporalOp:
		return enc.temporal(n, resolve)
	case cql.SpatialOp:
		left, err := enc.spatialOperand(n.Left, resolve)
		if err != nil {
			return "", err
		}
		right, err := enc.spatialOperand(n.Right, resolve)
		if err != nil {
			return "", err
		}
		sql, err := enc.d.SpatialPredicate(n.Op, left, right)
		if err != nil {
			return "", enc.fail(e, "%v", err)
		}
		return sql, nil
	case cql.ArrayOp:
		return "", enc.fail(e, "array operators need a value array property")
	case cql.Function:
		return enc.function(n, r)
	case cql.Property:
		col, err := resolve(n.Name)
		if err != nil {
			return "", enc.fail(e, "%v", err)
		}
		return col, nil
	case cql.ScalarLiteral:
		return enc.scalar(n), nil
	case cql.TemporalLiteral:
		switch n.Type {
		case cql.Instant:
			return enc.d.TimestampLiteral(n.Value), nil
		case cql.LocalDate:
			return enc.d.DateLiteral(n.Value), nil
		}
		return "", enc.fail(e, "interval literal outside a temporal operator")
	case cql.SpatialLiteral:
		return enc.d.GeometryFromWkt(n.WKT), nil
	case cql.ArrayLiteral:
		parts := make([]string, len(n.Elems))
		for i, el := range n.Elems {
			p, err := r(el)
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	case cql.Parameter:
		return "", enc.fail(e, "parameter %q is not bound", n.Name)
	case cql.IntervalExpr:
		return "", enc.fail(e, "interval outside a temporal operator")
	default:
		return "", enc.fail(e, "unsupported expression %T", e)
	}
}

func (enc *encoding) joined(args []cql.Expr, sep string, r func(cql.Expr) (string, error)) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		p, err := r(a)
		if err != nil {
			return "", err
		}
		parts[i] = p
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (enc *encoding) binary(r func(cql.Expr) (string, error), left cql.Expr, op string, right cql.Expr) (string, error) {
	l, err := r(left)
	if err != nil {
		return "", err
	}
	rt, err := r(right)
	if err != nil {
		return "", err
	}
	return l + " " + op + " " + rt, nil
}

func (enc *encoding) scalar(n cql.ScalarLiteral) string {
	switch v := n.Value.(type) {
	case string:
		return enc.d.EscapeString(v)
	case bool:
		return enc.d.BooleanLiteral(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return enc.d.EscapeString(fmt.Sprint(v))
	}
}

// idLiteral renders an id as a string literal so ids compare as text.
func (enc *encoding) idLiteral(e cql.Expr) (string, error) {
	lit, ok := e.(cql.ScalarLiteral)
	if !ok {
		return "", enc.fail(e, "ids must be literals")
	}
	return enc.d.EscapeString(fmt.Sprint(lit.Value)), nil
}

func (enc *encoding) idComparison(n cql.Comparison, resolve resolver) (string, error) {
	col, err := resolve(cql.IDPlaceholder)
	if err != nil {
		return "", err
	}
	v, err := enc.idLiteral(n.Right)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", enc.d.AsIds(col), n.Op, v), nil
}

func (enc *encoding) in(n cql.In, resolve resolver) (string, error) {
	id := isIDProperty(n.Value)

	var v string
	var err error
	if id {
		v, err = resolve(cql.IDPlaceholder)
		v = enc.d.AsIds(v)
	} else {
		v, err = enc.render(n.Value, resolve)
	}
	if err != nil {
		return "", err
	}

	parts := make([]string, len(n.List))
	for i, el := range n.List {
		if id {
			parts[i], err = enc.idLiteral(el)
		} else {
			parts[i], err = enc.render(el, resolve)
		}
		if err != nil {
			return "", err
		}
	}
	return v + " IN (" + strings.Join(parts, ", ") + ")", nil
}

func (enc *encoding) function(f cql.Function, r func(cql.Expr) (string, error)) (string, error) {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		s, err := r(a)
		if err != nil {
			return "", err
		}
		args[i] = s
	}

	switch strings.ToUpper(f.Name) {
	case "UPPER", "LOWER":
		if len(args) != 1 {
			return "", enc.fail(f, "expected 1 argument")
		}
		return strings.ToUpper(f.Name) + "(" + args[0] + ")", nil
	case "DIAMETER2D", "DIAMETER3D":
		if len(args) != 1 {
			return "", enc.fail(f, "expected 1 argument")
		}
		return enc.d.Diameter(args[0], strings.EqualFold(f.Name, "DIAMETER3D")), nil
	case "ALIKE":
		if len(args) != 2 {
			return "", enc.fail(f, "expected 2 arguments")
		}
		fold := func(s string) string { return enc.d.Unaccent("LOWER(" + s + ")") }
		return fold(args[0]) + " LIKE " + fold(args[1]), nil
	default:
		return "", enc.fail(f, "function %s is not supported in SQL filters", strings.ToUpper(f.Name))
	}
}

func (enc *encoding) spatialOperand(e cql.Expr, resolve resolver) (string, error) {
	switch n := e.(type) {
	case cql.Property:
		col, err := resolve(n.Name)
		if err != nil {
			return "", enc.fail(e, "%v", err)
		}
		return enc.d.GeometryColumn(col), nil
	case cql.SpatialLiteral:
		return enc.d.GeometryFromWkt(n.WKT), nil
	default:
		return enc.render(e, resolve)
	}
}

// subAlias names chain positions in filter sub-queries after the outer
// alias: AA, AB, AC, ... below A.
func (enc *encoding) subAlias(pos int) string {
	return enc.alias + tableAlias(pos)
}

// tableAlias names chain positions in value queries: A, B, C, ...
func tableAlias(pos int) string {
	if pos < 26 {
		return string(rune('A' + pos))
	}
	return "T" + strconv.Itoa(pos)
}
