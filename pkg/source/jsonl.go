package source

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/internal/pool"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 32 * 1024 * 1024

// lineBuffers backs the scanners of open JSONL sources so repeated scans
// reuse the initial scan buffer.
var lineBuffers = pool.NewBufferPool(pool.DefaultBufferSize)

// JSONLSource streams rows from newline-delimited JSON. The column set is
// fixed from the first record (keys sorted); later records missing a key
// yield a null cell and unknown keys are ignored, which keeps rows
// rectangular for the schema checks.
type JSONLSource struct {
	name    string
	rc      io.ReadCloser
	scanner *bufio.Scanner
	buf     *pool.ByteBuffer
	columns []string
	index   int64
	rows    *pool.RowPool
}

// OpenJSONL opens a JSONL file.
func OpenJSONL(path string) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dgerrors.FileNotFound(path)
		}
		return nil, dgerrors.Wrap(err, dgerrors.CodeFileNotFound, "failed to open source")
	}
	return NewJSONLSource(path, f), nil
}

// NewJSONLSource wraps an open reader.
func NewJSONLSource(name string, rc io.ReadCloser) *JSONLSource {
	buf := lineBuffers.Get()
	buf.Grow(pool.DefaultBufferSize)
	sc := bufio.NewScanner(rc)
	sc.Buffer(buf.Data[:cap(buf.Data)], maxLineSize)
	return &JSONLSource{name: name, rc: rc, scanner: sc, buf: buf, rows: pool.NewRowPool()}
}

func (s *JSONLSource) Name() string { return s.name }

// Columns returns the column set once the first record has been read.
func (s *JSONLSource) Columns() []string { return s.columns }

func (s *JSONLSource) Next(ctx context.Context) (*model.Row, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, dgerrors.FatalSource(err)
			}
			return nil, io.EOF
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(line, &obj); err != nil {
			idx := s.index
			s.index++
			return nil, dgerrors.DataFormat(idx, err)
		}

		if s.columns == nil {
			s.columns = make([]string, 0, len(obj))
			for k := range obj {
				s.columns = append(s.columns, k)
			}
			sort.Strings(s.columns)
		}

		row := s.rows.Get()
		row.Index = s.index
		row.Columns = s.columns
		pool.Fill(row, len(s.columns))
		for i, col := range s.columns {
			raw, ok := obj[col]
			if !ok || string(raw) == "null" {
				continue
			}
			row.Values[i] = appendRaw(row.Values[i], raw)
		}
		s.index++
		return row, nil
	}
}

// Recycle returns a scored row to the pool for reuse.
func (s *JSONLSource) Recycle(row *model.Row) { s.rows.Put(row) }

func (s *JSONLSource) Close() error {
	if s.buf != nil {
		lineBuffers.Put(s.buf)
		s.buf = nil
	}
	return s.rc.Close()
}

// appendRaw renders a JSON value into the cell buffer: strings are
// unquoted, everything else keeps its JSON text.
func appendRaw(dst []byte, raw json.RawMessage) []byte {
	if len(raw) > 0 && raw[0] == '"' {
		var str string
		if err := json.Unmarshal(raw, &str); err == nil {
			return append(dst, str...)
		}
	}
	return append(dst, raw...)
}
