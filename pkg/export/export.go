// Package export renders finished reports for people and pipelines:
// indented JSON for tooling, XLSX workbooks for review, and Parquet
// fact tables for BI dashboards.
package export

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/score"
)

// WriteReport writes a report to path in the format implied by its
// extension: .json, .xlsx, or .parquet.
func WriteReport(path string, report *score.Report) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SaveJSON(path, report)
	case ".xlsx":
		return WriteXLSX(path, report)
	case ".parquet":
		return WriteParquet(path, report)
	default:
		return dgerrors.New(dgerrors.CodeInvalidFormat, "unsupported export format").
			WithContext("path", path)
	}
}

// WriteJSON renders the report as indented JSON to w.
func WriteJSON(w io.Writer, report *score.Report) error {
	data, err := report.MarshalIndent()
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "report not serializable")
	}
	if _, err := w.Write(data); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "json write failed")
	}
	_, err = w.Write([]byte{'\n'})
	return err
}

// SaveJSON writes the report as indented JSON to a file.
func SaveJSON(path string, report *score.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "cannot create output file")
	}
	if err := WriteJSON(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
