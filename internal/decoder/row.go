package decoder

import (
	"context"
	"io"
)

// Row is one row of a value query.
type Row struct {
	// TablePath is the full source path of the table (SqlQuerySchema.FullPath).
	TablePath string

	// IDs are the sort keys of the join chain, main table first.
	IDs []any

	// Values holds one value per table column; nil is SQL NULL.
	Values []any
}

// RowMeta is the result row of a meta query.
type RowMeta struct {
	MinKey any
	MaxKey any

	NumberReturned int64

	// NumberMatched and NumberSkipped are -1 when not computed.
	NumberMatched int64
	NumberSkipped int64
}

// RowSource yields rows in decoding order. Next returns io.EOF after the
// last row.
type RowSource interface {
	Next(ctx context.Context) (Row, error)
}

// SliceSource is a RowSource over rows held in memory.
type SliceSource struct {
	rows []Row
	pos  int
}

// NewSliceSource creates a SliceSource yielding rows in order.
func NewSliceSource(rows ...Row) *SliceSource {
	return &SliceSource{rows: rows}
}

// Next implements RowSource.
func (s *SliceSource) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	if s.pos >= len(s.rows) {
		return Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}
