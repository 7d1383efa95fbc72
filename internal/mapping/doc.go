// Package mapping derives the relational join graph of a feature type from
// its ordered mapping rules.
//
// A feature type is declared as a flat list of source-path → target-path
// rules. Source paths describe where a value lives in the database, target
// paths where it ends up in the nested feature:
//
//	/building                                         → (feature)      FEATURE
//	/building/id                                      → id             INTEGER  ID
//	/building/name                                    → name           STRING
//	/building/geom                                    → geometry       GEOMETRY PRIMARY_GEOMETRY
//	/building/[id=building_id]part{sortKey=pid}       → parts          OBJECT_ARRAY
//	/building/[id=building_id]part{sortKey=pid}/floors → parts.floors  INTEGER
//
// Derive scans the rules once and produces a SqlQueryMapping: one
// SqlQuerySchema per table rule (the first one is the main table), the
// columns of every table, the join chain from the main table to every other
// table, and indices from target paths to table columns and schema
// properties.
//
// DERIVATION:
//
// A rule whose last segment is a table segment ([src=tgt]name, or the very
// first segment) is a table rule. Every other rule is a column of the
// nearest table on its path. Intermediate hops of a table path that are not
// registered tables themselves are junctions: relation tables that only
// connect two feature tables (the many-to-many case).
//
// Mappings are immutable after Derive returns and safe for concurrent use.
package mapping
