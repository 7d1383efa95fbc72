// Package dialect renders backend-specific SQL fragments.
//
// A Dialect is a stateless capability object: the query template deriver
// and the filter encoder build backend-neutral SQL and ask the dialect for
// every fragment that differs between backends (paging clauses, geometry
// and temporal conversions, literals, identifier quoting, spatial
// predicates).
//
// Implementations register themselves by name in init(); use Get to look
// one up:
//
//	d, ok := dialect.Get("postgres")
package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/featsql/internal/cql"
)

// Dialect renders SQL fragments for one backend.
// Implementations must be safe for concurrent use.
type Dialect interface {
	// Name is the registry name (postgres, sqlite, duckdb).
	Name() string

	// LimitAndOffset, Limit and Offset return paging clauses with a
	// leading space.
	LimitAndOffset(limit, offset int64) string
	Limit(limit int64) string
	Offset(offset int64) string

	// Wkt and Wkb convert a geometry expression to text or binary,
	// optionally forcing counter-clockwise polygon orientation and
	// linearizing curves first.
	Wkt(expr string, forceCCW, linearize bool) string
	Wkb(expr string, forceCCW, linearize bool) string

	// Date and Datetime render a temporal column as ISO 8601 text.
	Date(expr string) string
	Datetime(expr string) string

	// Expression substitutes the table alias into a raw SQL expression
	// where it contains the {{table}} placeholder.
	Expression(expr, alias string) string

	// EscapeString returns s as a quoted SQL string literal.
	EscapeString(s string) string

	CastToBigInt(expr string) string

	// NoTable completes a SELECT without FROM clause.
	NoTable(selectSQL string) string

	// AsIds casts an id column to text so ids of any type compare with id
	// filter literals.
	AsIds(expr string) string

	// QuoteIdentifier quotes name when it is not a plain lower-case
	// identifier.
	QuoteIdentifier(name string) string

	// GeometryFromWkt renders a geometry literal.
	GeometryFromWkt(wkt string) string

	// GeometryColumn converts a stored geometry column to a geometry value
	// usable by spatial predicates.
	GeometryColumn(expr string) string

	SpatialPredicate(op cql.SpatialOperator, left, right string) (string, error)

	TimestampLiteral(ts string) string
	DateLiteral(date string) string

	// InfiniteTimestamp renders the lower (past) or upper unbounded
	// timestamp of an open interval.
	InfiniteTimestamp(past bool) string

	Unaccent(expr string) string
	Diameter(expr string, threeD bool) string
	BooleanLiteral(b bool) string

	// NullsOrder returns " NULLS FIRST", " NULLS LAST" or "" for the
	// configured null ordering.
	NullsOrder(order string) string
}

// ErrUnknownDialect is returned by Lookup for unregistered names.
var ErrUnknownDialect = errors.New("unknown dialect")

// Dialect registry
var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// Get returns a dialect by name.
func Get(name string) (Dialect, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[strings.ToLower(name)]
	return d, ok
}

// Lookup is Get with an error for unknown names.
func Lookup(name string) (Dialect, error) {
	d, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownDialect, name, strings.Join(List(), ", "))
	}
	return d, nil
}

// Register registers a dialect in the global registry.
// Called by dialect implementations in their init() functions.
func Register(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[strings.ToLower(d.Name())] = d
}

// List returns all registered dialect names (sorted).
func List() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Null orderings accepted by NullsOrder.
const (
	NullsFirst = "FIRST"
	NullsLast  = "LAST"
)

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// reserved words that must be quoted even when they look plain.
var reserved = map[string]bool{
	"select": true, "from": true, "where": true, "order": true, "group": true,
	"limit": true, "offset": true, "user": true, "table": true, "join": true,
	"left": true, "on": true, "and": true, "or": true, "not": true, "in": true,
}

// standard holds the fragments shared by all ANSI-leaning backends.
// Concrete dialects embed it and override what differs.
type standard struct{}

func (standard) LimitAndOffset(limit, offset int64) string {
	if offset > 0 {
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func (standard) Limit(limit int64) string {
	return fmt.Sprintf(" LIMIT %d", limit)
}

func (standard) Offset(offset int64) string {
	if offset <= 0 {
		return ""
	}
	return fmt.Sprintf(" OFFSET %d", offset)
}

func (standard) Expression(expr, alias string) string {
	return strings.ReplaceAll(expr, "{{table}}", alias)
}

func (standard) EscapeString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (standard) CastToBigInt(expr string) string {
	return "CAST(" + expr + " AS BIGINT)"
}

func (standard) NoTable(selectSQL string) string {
	return selectSQL
}

func (standard) AsIds(expr string) string {
	return "CAST(" + expr + " AS VARCHAR)"
}

func (standard) QuoteIdentifier(name string) string {
	if plainIdent.MatchString(name) && !reserved[name] {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s standard) GeometryFromWkt(wkt string) string {
	return "ST_GeomFromText(" + s.EscapeString(wkt) + ")"
}

func (standard) GeometryColumn(expr string) string {
	return expr
}

var spatialFunctions = map[cql.SpatialOperator]string{
	cql.SIntersects: "ST_Intersects",
	cql.SEquals:     "ST_Equals",
	cql.SDisjoint:   "ST_Disjoint",
	cql.STouches:    "ST_Touches",
	cql.SWithin:     "ST_Within",
	cql.SOverlaps:   "ST_Overlaps",
	cql.SCrosses:    "ST_Crosses",
	cql.SContains:   "ST_Contains",
}

func (standard) SpatialPredicate(op cql.SpatialOperator, left, right string) (string, error) {
	fn, ok := spatialFunctions[op]
	if !ok {
		return "", fmt.Errorf("unsupported spatial operator %s", op)
	}
	return fmt.Sprintf("%s(%s, %s)", fn, left, right), nil
}

func (s standard) TimestampLiteral(ts string) string {
	return "TIMESTAMP " + s.EscapeString(ts)
}

func (s standard) DateLiteral(date string) string {
	return "DATE " + s.EscapeString(date)
}

func (standard) InfiniteTimestamp(past bool) string {
	if past {
		return "TIMESTAMP '-infinity'"
	}
	return "TIMESTAMP 'infinity'"
}

func (standard) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (standard) NullsOrder(order string) string {
	switch strings.ToUpper(order) {
	case NullsFirst:
		return " NULLS FIRST"
	case NullsLast:
		return " NULLS LAST"
	default:
		return ""
	}
}
