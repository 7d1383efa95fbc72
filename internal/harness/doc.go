// Package harness runs conformance scenarios against the engine.
//
// A scenario is a YAML file holding a SQLite fixture, the feature types to
// serve (a CUE provider directory or inline mapping rules) and a list of
// queries. Each query's feature stream is recorded; expect clauses check
// its counters and error code, assertions check its events.
//
//	name: building_filter
//	description: Filter on a nested property.
//	provider: ../../internal/compiler/testdata/building
//	fixture:
//	  - CREATE TABLE building (id INTEGER PRIMARY KEY, name TEXT)
//	queries:
//	  - type: building
//	    filter: {op: like, args: [{property: parts.rooms.label}, "Att%"]}
//	    expect: {returned: 1}
//	assertions:
//	  - type: trace_order
//	    path: name
//	    values: [A]
//
// Scenarios run in a fresh in-memory database with query ids q-1, q-2, ...
// so that snapshots compare byte for byte against golden files.
package harness
