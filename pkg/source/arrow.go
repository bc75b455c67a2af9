package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/datagrade/datagrade/internal/model"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// ArrowSource streams rows from Arrow IPC stream data. Record batches are
// walked one at a time; cells are rendered to the same raw text form the
// other sources deliver.
type ArrowSource struct {
	name    string
	rc      io.ReadCloser
	reader  *ipc.Reader
	columns []string

	record arrow.Record
	rowIn  int
	index  int64
}

// OpenArrow opens an Arrow IPC stream file.
func OpenArrow(path string) (*ArrowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dgerrors.FileNotFound(path)
		}
		return nil, dgerrors.Wrap(err, dgerrors.CodeFileNotFound, "failed to open source")
	}
	src, err := NewArrowSource(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewArrowSource wraps an open IPC stream.
func NewArrowSource(name string, rc io.ReadCloser) (*ArrowSource, error) {
	reader, err := ipc.NewReader(rc, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeInvalidFormat, "not an arrow ipc stream")
	}
	schema := reader.Schema()
	columns := make([]string, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		columns[i] = schema.Field(i).Name
	}
	return &ArrowSource{name: name, rc: rc, reader: reader, columns: columns}, nil
}

func (s *ArrowSource) Name() string      { return s.name }
func (s *ArrowSource) Columns() []string { return s.columns }

func (s *ArrowSource) Next(ctx context.Context) (*model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for s.record == nil || s.rowIn >= int(s.record.NumRows()) {
		if s.record != nil {
			s.record.Release()
			s.record = nil
		}
		if !s.reader.Next() {
			if err := s.reader.Err(); err != nil && err != io.EOF {
				return nil, dgerrors.FatalSource(err)
			}
			return nil, io.EOF
		}
		rec := s.reader.Record()
		rec.Retain()
		s.record = rec
		s.rowIn = 0
	}

	values := make([][]byte, len(s.columns))
	for i := 0; i < int(s.record.NumCols()); i++ {
		values[i] = cellBytes(s.record.Column(i), s.rowIn)
	}
	row := &model.Row{Index: s.index, Columns: s.columns, Values: values}
	s.rowIn++
	s.index++
	return row, nil
}

func (s *ArrowSource) Close() error {
	if s.record != nil {
		s.record.Release()
	}
	s.reader.Release()
	return s.rc.Close()
}

// cellBytes renders one array cell to its raw text form. Nulls map to nil
// so the missingness checks see them.
func cellBytes(col arrow.Array, i int) []byte {
	if col.IsNull(i) {
		return nil
	}
	switch a := col.(type) {
	case *array.String:
		return []byte(a.Value(i))
	case *array.LargeString:
		return []byte(a.Value(i))
	case *array.Binary:
		v := a.Value(i)
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case *array.Int64:
		return strconv.AppendInt(nil, a.Value(i), 10)
	case *array.Int32:
		return strconv.AppendInt(nil, int64(a.Value(i)), 10)
	case *array.Float64:
		return strconv.AppendFloat(nil, a.Value(i), 'g', -1, 64)
	case *array.Float32:
		return strconv.AppendFloat(nil, float64(a.Value(i)), 'g', -1, 32)
	case *array.Boolean:
		return strconv.AppendBool(nil, a.Value(i))
	default:
		return []byte(fmt.Sprintf("%v", col.GetOneForMarshal(i)))
	}
}
