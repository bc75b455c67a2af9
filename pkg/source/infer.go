package source

import (
	"context"
	"errors"
	"io"

	"github.com/datagrade/datagrade/pkg/engine"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/schema"
)

// DefaultInferRows is the sample size for schema inference.
const DefaultInferRows = 1000

// InferSchema opens the dataset and infers a schema from its first n rows.
// Decode errors in the sample are skipped, matching how the engine treats
// them. An empty dataset yields a nil schema and no error.
func InferSchema(ctx context.Context, path string, n int) (*schema.Schema, error) {
	if n <= 0 {
		n = DefaultInferRows
	}
	src, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	recycler, _ := src.(engine.Recycler)
	var columns []string
	sample := make([][][]byte, 0, n)
	for len(sample) < n {
		row, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if dgerrors.IsCode(err, dgerrors.CodeDataFormat) {
				continue
			}
			return nil, err
		}
		if columns == nil {
			columns = append([]string(nil), row.Columns...)
		}
		// Cells are copied out because recycled rows reuse their backing
		// arrays.
		cells := make([][]byte, len(row.Values))
		for i, v := range row.Values {
			if row.IsMissing(i) {
				continue
			}
			cells[i] = append([]byte(nil), v...)
		}
		sample = append(sample, cells)
		if recycler != nil {
			recycler.Recycle(row)
		}
	}
	if columns == nil {
		return nil, nil
	}
	return schema.Infer(columns, sample), nil
}
