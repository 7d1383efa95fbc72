// Package querysql renders the SQL of feature queries.
//
// Two components live here:
//
//   - FilterEncoder turns a CQL2 expression into a SQL predicate over the
//     tables of a mapping.
//   - Deriver builds, once per feature type, a meta template and one value
//     template per table. Templates are rendered per request from Params.
//
// A request runs the meta query first. It pages the main table and reports
// the sort key window (minKey, maxKey) together with the counters
// numberReturned, numberMatched and numberSkipped:
//
//	WITH NR AS (...), NM AS (...), NS AS (...)
//	SELECT NR.minKey, NR.maxKey, NR.numberReturned, NM.numberMatched, NS.numberSkipped
//	FROM NR, NM, NS
//
// The value queries then read every table joined along its relation chain,
// restricted to that window. When custom sort keys are requested the window
// is not a key range, so value queries page the main table in a sub-query
// instead:
//
//	WHERE A.id IN (SELECT AA.id FROM building AA ORDER BY ... LIMIT 10)
//
// Value rows are ordered by the sort keys of every chain position, which is
// the order the nested row decoder expects.
//
// Templates hold no per-request state and are safe for concurrent use.
package querysql
