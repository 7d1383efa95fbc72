package querysql

import (
	"github.com/roach88/featsql/internal/dialect"
	"github.com/roach88/featsql/internal/mapping"
)

// columnExpr is a SELECT-list expression of a value query. Columns are
// built as a tree from their mapping operations and rendered once per
// dialect and alias.
type columnExpr interface {
	render(d dialect.Dialect, alias string) string
}

// colRef is a plain column of the aliased table.
type colRef struct {
	name string
}

func (c colRef) render(d dialect.Dialect, alias string) string {
	return alias + "." + d.QuoteIdentifier(c.name)
}

// rawExpr is a raw SQL expression; {{table}} is replaced by the alias.
type rawExpr struct {
	sql string
}

func (r rawExpr) render(d dialect.Dialect, alias string) string {
	return d.Expression(r.sql, alias)
}

// constExpr is a string constant.
type constExpr struct {
	value string
}

func (c constExpr) render(d dialect.Dialect, _ string) string {
	return d.EscapeString(c.value)
}

// geomExpr encodes a geometry as WKT or WKB.
type geomExpr struct {
	inner     columnExpr
	wkb       bool
	forceCCW  bool
	linearize bool
}

func (g geomExpr) render(d dialect.Dialect, alias string) string {
	inner := g.inner.render(d, alias)
	if g.wkb {
		return d.Wkb(inner, g.forceCCW, g.linearize)
	}
	return d.Wkt(inner, g.forceCCW, g.linearize)
}

// temporalExpr formats a date or timestamp as ISO 8601 text.
type temporalExpr struct {
	inner columnExpr
	date  bool
}

func (t temporalExpr) render(d dialect.Dialect, alias string) string {
	inner := t.inner.render(d, alias)
	if t.date {
		return d.Date(inner)
	}
	return d.Datetime(inner)
}

// baseExpr returns the value source of a column without shape operations.
func baseExpr(col mapping.SqlQueryColumn) columnExpr {
	switch {
	case col.HasOperation(mapping.OpConstant):
		return constExpr{value: col.Param(mapping.OpConstant)}
	case col.HasOperation(mapping.OpExpression):
		return rawExpr{sql: col.Param(mapping.OpExpression)}
	default:
		return colRef{name: col.Name}
	}
}

// valueExpr returns the full SELECT expression of a column.
func valueExpr(col mapping.SqlQueryColumn) columnExpr {
	base := baseExpr(col)
	shape, ok := col.Shape()
	if !ok {
		return base
	}
	switch shape {
	case mapping.OpWkt, mapping.OpWkb:
		return geomExpr{
			inner:     base,
			wkb:       shape == mapping.OpWkb,
			forceCCW:  col.HasOperation(mapping.OpForcePolygonCCW),
			linearize: col.HasOperation(mapping.OpLinearizeCurves),
		}
	case mapping.OpDate:
		return temporalExpr{inner: base, date: true}
	case mapping.OpDatetime:
		return temporalExpr{inner: base}
	}
	return base
}

// columnSQL renders the value source of a column for use in predicates.
func columnSQL(d dialect.Dialect, col mapping.SqlQueryColumn, alias string) string {
	return baseExpr(col).render(d, alias)
}
