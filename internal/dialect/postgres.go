package dialect

import (
	"github.com/lib/pq"
)

func init() {
	Register(Postgres{})
}

// Postgres renders SQL for PostgreSQL with PostGIS.
type Postgres struct {
	standard
}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Wkt(expr string, forceCCW, linearize bool) string {
	return "ST_AsText(" + postgisShape(expr, forceCCW, linearize) + ")"
}

func (Postgres) Wkb(expr string, forceCCW, linearize bool) string {
	return "ST_AsBinary(" + postgisShape(expr, forceCCW, linearize) + ")"
}

func postgisShape(expr string, forceCCW, linearize bool) string {
	if linearize {
		expr = "ST_CurveToLine(" + expr + ")"
	}
	if forceCCW {
		expr = "ST_ForcePolygonCCW(" + expr + ")"
	}
	return expr
}

func (Postgres) Date(expr string) string {
	return "TO_CHAR(" + expr + ", 'YYYY-MM-DD')"
}

func (Postgres) Datetime(expr string) string {
	return "TO_CHAR(" + expr + ` AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`
}

// EscapeString uses PostgreSQL literal quoting, including E'' strings for
// backslashes.
func (Postgres) EscapeString(s string) string {
	return pq.QuoteLiteral(s)
}

// QuoteIdentifier leaves plain lower-case names alone and otherwise uses
// PostgreSQL identifier quoting.
func (Postgres) QuoteIdentifier(name string) string {
	if plainIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return pq.QuoteIdentifier(name)
}

func (p Postgres) GeometryFromWkt(wkt string) string {
	return "ST_GeomFromText(" + p.EscapeString(wkt) + ", 4326)"
}

func (p Postgres) TimestampLiteral(ts string) string {
	return "TIMESTAMP " + p.EscapeString(ts)
}

func (p Postgres) DateLiteral(date string) string {
	return "DATE " + p.EscapeString(date)
}

func (Postgres) Unaccent(expr string) string {
	return "unaccent(" + expr + ")"
}

func (Postgres) Diameter(expr string, threeD bool) string {
	if threeD {
		return "ST_3DLength(ST_BoundingDiagonal(" + expr + "))"
	}
	return "ST_Length(ST_BoundingDiagonal(" + expr + "))"
}
