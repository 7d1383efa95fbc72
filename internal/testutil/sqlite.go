package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/roach88/featsql/internal/store"
)

// OpenFixture opens a fresh in-memory SQLite store and runs the fixture
// statements in order.
func OpenFixture(ctx context.Context, stmts ...string) (*store.Store, error) {
	st, err := store.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	if err := st.Exec(ctx, stmts...); err != nil {
		st.Close()
		return nil, fmt.Errorf("load fixture: %w", err)
	}
	return st, nil
}

// MustFixture is OpenFixture for tests. The store is closed by t.Cleanup.
func MustFixture(t testing.TB, stmts ...string) *store.Store {
	t.Helper()
	st, err := OpenFixture(context.Background(), stmts...)
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
