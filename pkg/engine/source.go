package engine

import (
	"context"
	"io"

	"github.com/datagrade/datagrade/internal/model"
)

// RowSource is the pull interface the engine reads a dataset through.
// Implementations must return io.EOF at stream end and a fatal error
// (CodeFatalSource) when the stream cannot continue; per-row decode
// problems should be surfaced as CodeDataFormat errors so the engine can
// count and skip them.
type RowSource interface {
	// Name identifies the source in logs and the report.
	Name() string

	// Columns returns the column names in order. Valid after construction.
	Columns() []string

	// Next returns the next row. Row index assignment is the source's job:
	// indexes are global, zero-based, and stable across runs.
	Next(ctx context.Context) (*model.Row, error)

	// Close releases underlying resources.
	Close() error
}

// Recycler is implemented by sources that pool rows. The engine hands each
// row back once scoring is done; nothing downstream retains row bytes, so
// the source may reuse them immediately.
type Recycler interface {
	Recycle(*model.Row)
}

// SliceSource serves rows from memory.
type SliceSource struct {
	name    string
	columns []string
	rows    []model.Row
	pos     int

	// FailAt injects a fatal source error before row FailAt is returned.
	// Zero disables injection.
	FailAt int64
	// FailErr is the error returned at FailAt.
	FailErr error
}

// NewSliceSource builds an in-memory source over string cell values.
func NewSliceSource(name string, columns []string, values [][]string) *SliceSource {
	rows := make([]model.Row, len(values))
	for i, rec := range values {
		cells := make([][]byte, len(rec))
		for j, v := range rec {
			cells[j] = []byte(v)
		}
		rows[i] = model.Row{Index: int64(i), Columns: columns, Values: cells}
	}
	return &SliceSource{name: name, columns: columns, rows: rows}
}

func (s *SliceSource) Name() string      { return s.name }
func (s *SliceSource) Columns() []string { return s.columns }

func (s *SliceSource) Next(ctx context.Context) (*model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailErr != nil && int64(s.pos) >= s.FailAt {
		return nil, s.FailErr
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := &s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *SliceSource) Close() error { return nil }
