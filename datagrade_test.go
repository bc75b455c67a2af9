package datagrade

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScanCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	data := "id,text\n" +
		"1,the quick brown fox jumps over the lazy dog today\n" +
		"2,the quick brown fox jumps over the lazy dog today\n" +
		"3,an entirely different sentence about completely other things here\n" +
		"4,\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Scan(context.Background(), path, WithShards(1))
	if err != nil {
		t.Fatal(err)
	}
	if report.Rows != 4 {
		t.Fatalf("Rows = %d, want 4", report.Rows)
	}
	if report.Duplication.ExactDuplicates != 1 {
		t.Fatalf("ExactDuplicates = %d, want 1", report.Duplication.ExactDuplicates)
	}
	if report.Composite < 0 || report.Composite > 1 {
		t.Fatalf("composite out of range: %f", report.Composite)
	}
	if report.Grade == "" {
		t.Fatal("report must carry a grade")
	}

	// Without a declared schema the scan infers one from the leading rows.
	var idType string
	for _, c := range report.Columns {
		if c.Name == "id" {
			idType = c.Type
		}
	}
	if idType != "int" {
		t.Fatalf("inferred id type = %q, want int", idType)
	}
}

func TestScanUnknownAnalyzer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	if err := os.WriteFile(path, []byte("text\nhello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Scan(context.Background(), path, WithAnalyzers("nonsense")); err == nil {
		t.Fatal("unknown analyzer must error")
	}
}
