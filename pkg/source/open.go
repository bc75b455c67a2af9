package source

import (
	"context"
	"strings"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/engine"
)

// Open dispatches a local path to the source matching its extension.
// Parquet goes through the DuckDB scan; CSV and JSONL use the native
// streaming decoders.
func Open(ctx context.Context, path string) (engine.RowSource, error) {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return OpenCSV(path)
	case strings.HasSuffix(path, ".tsv"):
		return OpenTSV(path)
	case strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".ndjson"):
		return OpenJSONL(path)
	case strings.HasSuffix(path, ".arrow"):
		return OpenArrow(path)
	case strings.HasSuffix(path, ".parquet"):
		return OpenDuckDB(ctx, path)
	default:
		return nil, dgerrors.New(dgerrors.CodeInvalidFormat, "unsupported extension: "+path)
	}
}
