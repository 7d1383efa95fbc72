// Package store executes feature queries through database/sql.
//
// Three drivers are linked in and selected by name:
//   - sqlite3 (github.com/mattn/go-sqlite3) for SQLite/SpatiaLite
//   - pgx (github.com/jackc/pgx/v5/stdlib) for PostgreSQL/PostGIS
//   - duckdb (github.com/marcboeker/go-duckdb) for DuckDB
//
// The store knows nothing about mappings. It runs rendered SQL and splits
// result rows by a Layout into custom sort keys, sort keys and values, so
// the engine can order and decode them.
//
// # Database Configuration
//
// SQLite stores use a single connection:
//   - WAL mode: Concurrent reads during writes
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
