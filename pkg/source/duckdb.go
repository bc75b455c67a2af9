package source

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/datagrade/datagrade/internal/model"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// DuckDBSource streams rows out of a DuckDB scan. It covers every format
// DuckDB can read in place, which is how Parquet datasets enter the
// scanner without a conversion step.
type DuckDBSource struct {
	name    string
	db      *sql.DB
	rows    *sql.Rows
	columns []string
	scan    []sql.NullString
	ptrs    []interface{}
	index   int64
}

// OpenDuckDB scans a file through read_parquet/read_csv_auto/read_json_auto
// based on its extension.
func OpenDuckDB(ctx context.Context, path string) (*DuckDBSource, error) {
	var table string
	switch {
	case strings.HasSuffix(path, ".parquet"):
		table = fmt.Sprintf("read_parquet('%s')", escapePath(path))
	case strings.HasSuffix(path, ".csv"), strings.HasSuffix(path, ".tsv"):
		table = fmt.Sprintf("read_csv_auto('%s')", escapePath(path))
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".jsonl"):
		table = fmt.Sprintf("read_json_auto('%s')", escapePath(path))
	default:
		return nil, dgerrors.New(dgerrors.CodeInvalidFormat, "unsupported extension: "+path)
	}
	return QueryDuckDB(ctx, path, "SELECT * FROM "+table)
}

// QueryDuckDB runs an arbitrary query and serves its result set as rows.
func QueryDuckDB(ctx context.Context, name, query string) (*DuckDBSource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, dgerrors.Wrap(err, dgerrors.CodeQueryFailed, "failed to open duckdb")
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		db.Close()
		return nil, dgerrors.Wrap(err, dgerrors.CodeQueryFailed, "query failed")
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, dgerrors.Wrap(err, dgerrors.CodeQueryFailed, "failed to read columns")
	}

	src := &DuckDBSource{
		name:    name,
		db:      db,
		rows:    rows,
		columns: columns,
		scan:    make([]sql.NullString, len(columns)),
		ptrs:    make([]interface{}, len(columns)),
	}
	for i := range src.scan {
		src.ptrs[i] = &src.scan[i]
	}
	return src, nil
}

func (s *DuckDBSource) Name() string      { return s.name }
func (s *DuckDBSource) Columns() []string { return s.columns }

func (s *DuckDBSource) Next(ctx context.Context) (*model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, dgerrors.FatalSource(err)
		}
		return nil, io.EOF
	}
	if err := s.rows.Scan(s.ptrs...); err != nil {
		idx := s.index
		s.index++
		return nil, dgerrors.DataFormat(idx, err)
	}

	values := make([][]byte, len(s.columns))
	for i, v := range s.scan {
		if v.Valid {
			values[i] = []byte(v.String)
		}
	}
	row := &model.Row{Index: s.index, Columns: s.columns, Values: values}
	s.index++
	return row, nil
}

func (s *DuckDBSource) Close() error {
	s.rows.Close()
	return s.db.Close()
}

func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
