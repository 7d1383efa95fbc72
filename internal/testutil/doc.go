// Package testutil provides deterministic helpers for tests and the
// scenario harness: sequential query ids and in-memory SQLite fixtures.
package testutil
