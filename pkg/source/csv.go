// Package source provides RowSource implementations over the dataset
// formats the scanner accepts: CSV, JSONL, Arrow IPC files, anything
// DuckDB can scan (Parquet included), and objects in S3.
package source

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/internal/pool"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// CSVSource streams rows from a CSV file. The first record is the header;
// malformed records surface as CodeDataFormat errors so the engine can
// count and skip them. Rows come from a pool and are reused after the
// engine recycles them.
type CSVSource struct {
	name    string
	rc      io.ReadCloser
	reader  *csv.Reader
	columns []string
	index   int64
	rows    *pool.RowPool
}

// OpenCSV opens a CSV file and reads its header.
func OpenCSV(path string) (*CSVSource, error) {
	return openDelimited(path, ',')
}

// OpenTSV opens a tab-separated file.
func OpenTSV(path string) (*CSVSource, error) {
	return openDelimited(path, '\t')
}

func openDelimited(path string, delimiter rune) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dgerrors.FileNotFound(path)
		}
		if os.IsPermission(err) {
			return nil, dgerrors.Wrap(err, dgerrors.CodeFilePermission, "permission denied")
		}
		return nil, dgerrors.Wrap(err, dgerrors.CodeFileNotFound, "failed to open source")
	}
	src, err := NewCSVSource(path, f, delimiter)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewCSVSource wraps an open reader. delimiter selects CSV vs TSV.
func NewCSVSource(name string, rc io.ReadCloser, delimiter rune) (*CSVSource, error) {
	r := csv.NewReader(rc)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeInvalidFormat, "failed to read header")
	}
	columns := make([]string, len(header))
	copy(columns, header)

	return &CSVSource{name: name, rc: rc, reader: r, columns: columns, rows: pool.NewRowPool()}, nil
}

func (s *CSVSource) Name() string      { return s.name }
func (s *CSVSource) Columns() []string { return s.columns }

func (s *CSVSource) Next(ctx context.Context) (*model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if _, ok := err.(*csv.ParseError); ok {
			s.index++
			return nil, dgerrors.DataFormat(s.index-1, err)
		}
		return nil, dgerrors.FatalSource(err)
	}

	row := s.rows.Get()
	row.Index = s.index
	row.Columns = s.columns
	pool.Fill(row, len(s.columns))
	for i := range s.columns {
		if i < len(rec) {
			row.Values[i] = append(row.Values[i], rec[i]...)
		}
	}
	s.index++
	return row, nil
}

// Recycle returns a scored row to the pool for reuse.
func (s *CSVSource) Recycle(row *model.Row) { s.rows.Put(row) }

func (s *CSVSource) Close() error { return s.rc.Close() }
