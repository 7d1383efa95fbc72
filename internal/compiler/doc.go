// Package compiler turns CUE provider files into a Provider.
//
// A provider directory holds one CUE package with a top-level provider
// value:
//
//	provider: {
//		dialect: "sqlite" | "postgres" | "duckdb"
//		connection: dsn: string
//		queries: {concurrency, computeNumberMatched, nullOrder,
//		          geometryEncoding, forcePolygonCCW, linearizeCurves, cacheSize}
//		types: <name>: [{source, target, type, role?}, ...]
//	}
//
// The value is unified with the embedded #Provider schema, which closes the
// struct and supplies defaults. Errors carry the CUE position of the
// offending value where one is known.
package compiler
