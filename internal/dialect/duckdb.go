package dialect

import "strconv"

func init() {
	Register(DuckDB{})
}

// DuckDB renders SQL for DuckDB with the spatial extension.
type DuckDB struct {
	standard
}

func (DuckDB) Name() string { return "duckdb" }

func (DuckDB) Wkt(expr string, forceCCW, linearize bool) string {
	return "ST_AsText(" + duckdbShape(expr, forceCCW, linearize) + ")"
}

func (DuckDB) Wkb(expr string, forceCCW, linearize bool) string {
	return "ST_AsWKB(" + duckdbShape(expr, forceCCW, linearize) + ")"
}

// duckdbShape ignores linearize: the spatial extension has no curve types.
func duckdbShape(expr string, forceCCW, _ bool) string {
	if forceCCW {
		return "ST_ForcePolygonCCW(" + expr + ")"
	}
	return expr
}

func (DuckDB) Date(expr string) string {
	return "strftime(" + expr + ", '%Y-%m-%d')"
}

func (DuckDB) Datetime(expr string) string {
	return "strftime(" + expr + ", '%Y-%m-%dT%H:%M:%SZ')"
}

func (DuckDB) Unaccent(expr string) string {
	return "strip_accents(" + expr + ")"
}

func (DuckDB) Diameter(expr string, _ bool) string {
	return "sqrt(power(ST_XMax(" + expr + ") - ST_XMin(" + expr + "), 2) + power(ST_YMax(" + expr + ") - ST_YMin(" + expr + "), 2))"
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
