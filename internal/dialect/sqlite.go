package dialect

func init() {
	Register(SQLite{})
}

// SQLite renders SQL for SQLite. Geometries are stored as WKT text or WKB
// blobs and read back unchanged; spatial predicates use SpatiaLite function
// names and require the extension to be loaded.
type SQLite struct {
	standard
}

func (SQLite) Name() string { return "sqlite" }

// Offset needs a LIMIT clause in SQLite; -1 means unbounded.
func (SQLite) Offset(offset int64) string {
	if offset <= 0 {
		return ""
	}
	return " LIMIT -1 OFFSET " + itoa(offset)
}

func (SQLite) Wkt(expr string, _, _ bool) string {
	return expr
}

func (SQLite) Wkb(expr string, _, _ bool) string {
	return expr
}

func (SQLite) Date(expr string) string {
	return "strftime('%Y-%m-%d', " + expr + ")"
}

func (SQLite) Datetime(expr string) string {
	return "strftime('%Y-%m-%dT%H:%M:%SZ', " + expr + ")"
}

func (SQLite) CastToBigInt(expr string) string {
	return "CAST(" + expr + " AS INTEGER)"
}

func (SQLite) AsIds(expr string) string {
	return "CAST(" + expr + " AS TEXT)"
}

func (SQLite) GeometryColumn(expr string) string {
	return "GeomFromText(" + expr + ")"
}

func (s SQLite) GeometryFromWkt(wkt string) string {
	return "GeomFromText(" + s.EscapeString(wkt) + ")"
}

// TimestampLiteral and DateLiteral are plain strings: SQLite stores
// temporal values as ISO 8601 text, which orders lexically.
func (s SQLite) TimestampLiteral(ts string) string {
	return s.EscapeString(ts)
}

func (s SQLite) DateLiteral(date string) string {
	return s.EscapeString(date)
}

func (SQLite) InfiniteTimestamp(past bool) string {
	if past {
		return "'0000-01-01T00:00:00Z'"
	}
	return "'9999-12-31T23:59:59Z'"
}

// Unaccent is the identity: SQLite has no accent folding.
func (SQLite) Unaccent(expr string) string {
	return expr
}

func (SQLite) Diameter(expr string, _ bool) string {
	return "ST_MaxDistance(" + expr + ", " + expr + ")"
}

func (SQLite) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
