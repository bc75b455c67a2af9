package export

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/score"
)

// parquetCompression is the codec for Parquet exports. ZSTD is what most
// warehouse loaders expect.
const parquetCompression = "ZSTD"

// WriteParquet writes the report's category scores as a flat Parquet fact
// table, one row per category with the run metadata denormalized onto each
// row. Dashboards can union many scan runs into a single table.
func WriteParquet(path string, report *score.Report) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "cannot open duckdb")
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE category_scores (
			run_id        VARCHAR,
			dataset       VARCHAR,
			started_at    TIMESTAMP,
			total_rows    BIGINT,
			composite     DOUBLE,
			grade         VARCHAR,
			category      VARCHAR,
			score         DOUBLE,
			weight        DOUBLE,
			flagged_rows  BIGINT,
			excluded      BOOLEAN
		)
	`)
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "cannot create fact table")
	}

	stmt, err := db.Prepare(`
		INSERT INTO category_scores
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "cannot prepare insert")
	}
	defer stmt.Close()

	for _, s := range report.Scores {
		_, err := stmt.Exec(
			report.RunID, report.Dataset, report.StartedAt,
			report.Rows, report.Composite, report.Grade,
			string(s.Category), s.Score, s.Weight, s.FlaggedRows, s.Excluded,
		)
		if err != nil {
			return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "fact insert failed")
		}
	}

	copyStmt := fmt.Sprintf(
		`COPY (SELECT * FROM category_scores ORDER BY category) TO '%s' (FORMAT PARQUET, COMPRESSION '%s')`,
		escapePath(path), parquetCompression,
	)
	if _, err := db.Exec(copyStmt); err != nil {
		return dgerrors.Wrap(err, dgerrors.CodeExportFailed, "parquet copy failed")
	}
	return nil
}

// escapePath doubles single quotes for embedding in a SQL string literal.
func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
