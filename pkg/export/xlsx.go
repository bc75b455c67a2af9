package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/score"
)

// WriteXLSX writes the report as a review workbook: a Summary sheet plus
// one sheet each for category scores, columns, top issues, and analyzers.
func WriteXLSX(path string, report *score.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx style failed")
	}

	if err := writeSummarySheet(f, bold, report); err != nil {
		return err
	}
	if err := writeScoresSheet(f, bold, report); err != nil {
		return err
	}
	if err := writeColumnsSheet(f, bold, report); err != nil {
		return err
	}
	if err := writeIssuesSheet(f, bold, report); err != nil {
		return err
	}
	if err := writeAnalyzersSheet(f, bold, report); err != nil {
		return err
	}

	if idx, err := f.GetSheetIndex("Summary"); err == nil {
		f.SetActiveSheet(idx)
	}
	if err := f.SaveAs(path); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx save failed")
	}
	return nil
}

func writeSummarySheet(f *excelize.File, bold int, r *score.Report) error {
	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx sheet failed")
	}

	rows := [][]interface{}{
		{"Dataset", r.Dataset},
		{"Run", r.RunID},
		{"Started", r.StartedAt.Format(time.RFC3339)},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
		{"Rows", r.Rows},
		{"Composite", r.Composite},
		{"Grade", r.Grade},
		{"Exact duplicates", r.Duplication.ExactDuplicates},
		{"Near duplicates", r.Duplication.NearDuplicates},
	}
	if r.UnprocessedRows > 0 {
		rows = append(rows, []interface{}{"Unprocessed rows", r.UnprocessedRows})
	}
	if r.Incomplete {
		rows = append(rows, []interface{}{"Incomplete", true})
	}
	if r.TokenLength != nil {
		rows = append(rows,
			[]interface{}{"Token length median", r.TokenLength.Median},
			[]interface{}{"Token length p1/p99", fmt.Sprintf("%.0f / %.0f", r.TokenLength.P01, r.TokenLength.P99)},
		)
	}

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx row failed")
		}
	}
	return f.SetCellStyle(sheet, "A1", fmt.Sprintf("A%d", len(rows)), bold)
}

func writeScoresSheet(f *excelize.File, bold int, r *score.Report) error {
	const sheet = "Scores"
	header := []interface{}{"Category", "Score", "Weight", "Flagged Rows", "Excluded"}
	rows := make([][]interface{}, 0, len(r.Scores))
	for _, s := range r.Scores {
		rows = append(rows, []interface{}{
			string(s.Category), s.Score, s.Weight, s.FlaggedRows, s.Excluded,
		})
	}
	return writeTable(f, sheet, bold, header, rows)
}

func writeColumnsSheet(f *excelize.File, bold int, r *score.Report) error {
	const sheet = "Columns"
	header := []interface{}{"Column", "Type", "Rows", "Null Ratio", "Distinct", "Uniqueness", "Entropy", "Type Errors", "Format Errors"}
	rows := make([][]interface{}, 0, len(r.Columns))
	for _, c := range r.Columns {
		rows = append(rows, []interface{}{
			c.Name, c.Type, c.Rows, c.NullRatio, c.Distinct,
			c.UniquenessRatio, c.Entropy, c.TypeErrors, c.FormatErrors,
		})
	}
	return writeTable(f, sheet, bold, header, rows)
}

func writeIssuesSheet(f *excelize.File, bold int, r *score.Report) error {
	const sheet = "Top Issues"
	header := []interface{}{"Category", "Issue", "Column", "Rows"}
	rows := make([][]interface{}, 0, len(r.TopIssues))
	for _, is := range r.TopIssues {
		rows = append(rows, []interface{}{
			string(is.Category), is.Name, is.Column, is.Rows,
		})
	}
	return writeTable(f, sheet, bold, header, rows)
}

func writeAnalyzersSheet(f *excelize.File, bold int, r *score.Report) error {
	const sheet = "Analyzers"
	header := []interface{}{"Analyzer", "Tier", "Status", "Reason", "Error Rows"}
	rows := make([][]interface{}, 0, len(r.Analyzers))
	for _, a := range r.Analyzers {
		rows = append(rows, []interface{}{
			a.Name, a.Tier, a.Status, a.Reason, a.ErrorRows,
		})
	}
	return writeTable(f, sheet, bold, header, rows)
}

func writeTable(f *excelize.File, sheet string, bold int, header []interface{}, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx sheet failed")
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx header failed")
	}
	endCol, err := excelize.ColumnNumberToName(len(header))
	if err == nil {
		f.SetCellStyle(sheet, "A1", endCol+"1", bold)
	}
	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "xlsx row failed")
		}
	}
	return nil
}
