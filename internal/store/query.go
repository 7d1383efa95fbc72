package store

import (
	"context"
	"fmt"

	"github.com/roach88/featsql/internal/decoder"
)

// Layout describes the columns of a value query result: CustomKeys custom
// sort keys, then Keys sort keys, then Values value columns.
type Layout struct {
	CustomKeys int
	Keys       int
	Values     int
}

// Width is the number of result columns.
func (l Layout) Width() int {
	return l.CustomKeys + l.Keys + l.Values
}

// Record is one scanned value query row split by Layout.
type Record struct {
	CustomKeys []any
	IDs        []any
	Values     []any
}

// QueryMeta runs a meta query and scans its single row.
func (s *Store) QueryMeta(ctx context.Context, query string) (decoder.RowMeta, error) {
	s.logger.Debug("meta query", "sql", query)

	var meta decoder.RowMeta
	row := s.db.QueryRowContext(ctx, query)
	err := row.Scan(&meta.MinKey, &meta.MaxKey, &meta.NumberReturned, &meta.NumberMatched, &meta.NumberSkipped)
	if err != nil {
		return decoder.RowMeta{}, fmt.Errorf("scan meta row: %w", err)
	}
	return meta, nil
}

// QueryRows runs a value query and calls fn for every row in result order.
// An error from fn stops the iteration and is returned unwrapped.
func (s *Store) QueryRows(ctx context.Context, query string, layout Layout, fn func(Record) error) error {
	s.logger.Debug("value query", "sql", query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query values: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read columns: %w", err)
	}
	if len(cols) != layout.Width() {
		return fmt.Errorf("value query returned %d columns, want %d", len(cols), layout.Width())
	}

	n := 0
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan value row: %w", err)
		}

		ck := layout.CustomKeys
		rec := Record{
			CustomKeys: values[:ck:ck],
			IDs:        values[ck : ck+layout.Keys : ck+layout.Keys],
			Values:     values[ck+layout.Keys:],
		}
		if err := fn(rec); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate values: %w", err)
	}

	s.logger.Debug("value query done", "rows", n)
	return nil
}
