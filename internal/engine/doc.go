// Package engine executes feature queries.
//
// At construction the engine derives, for every configured feature type, the
// join graph (mapping.Derive) and the query templates (querysql.Derive).
// Derivation errors are fatal: New fails and nothing is served.
//
// Query execution:
//  1. Type-check the filter against the feature type's properties.
//  2. Run the meta query and hand its counters to a fresh decoder.
//  3. If any feature was returned, run the value queries of all tables
//     concurrently, bounded by the meta query's key range or by the paged
//     root sub-query.
//  4. Merge the value rows depth-first: root rank, then for each table on
//     the join chain its mapping position and the rank of the ancestor row.
//  5. Feed the merged rows to the decoder and close it.
//
// Every execution gets a UUIDv7 query id that tags its log lines and errors.
// Rendered SQL is cached per feature type and parameters.
//
// The engine holds no per-query state; Query is safe for concurrent use.
// Handlers are called from the calling goroutine only.
package engine
