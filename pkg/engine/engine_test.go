package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/pkg/analyzer"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/score"
)

var testColumns = []string{"id", "text", "label"}

// tenRows is a corpus with two exact duplicates of row 0, one mostly-null
// row, and one extreme-length row.
func tenRows() [][]string {
	long := strings.Repeat("word ", 10500)
	return [][]string{
		{"1", "the quick brown fox jumps over the lazy dog today", "a"},
		{"2", "a completely different sentence about the weather in spring", "b"},
		{"3", "the quick brown fox jumps over the lazy dog today", "a"},
		{"4", "yet another unique sentence with plenty of ordinary words", "a"},
		{"5", "NULL", "NULL"},
		{"6", long, "b"},
		{"7", "short sentences are fine when they pass the minimum length", "a"},
		{"8", "the quick brown fox jumps over the lazy dog today", "b"},
		{"9", "this corpus needs enough clean rows to stay above water", "a"},
		{"10", "one more perfectly reasonable training sentence to finish", "b"},
	}
}

func testEngine(shards int) *Engine {
	return New(Config{
		Dataset:    "test",
		TextColumn: "text",
		Analyzers: []analyzer.Analyzer{
			analyzer.NullCheck{},
			analyzer.Encoding{},
			analyzer.TokenStats{},
			analyzer.Outliers{},
			analyzer.Noise{},
		},
		Shards: shards,
	})
}

func TestRunTenRowScenario(t *testing.T) {
	report, err := testEngine(1).Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
	if err != nil {
		t.Fatal(err)
	}

	if report.Rows != 10 {
		t.Fatalf("rows = %d, want 10", report.Rows)
	}
	if report.Incomplete || report.ZeroRows {
		t.Fatalf("clean run flagged incomplete/zero: %+v", report)
	}
	if report.Duplication.ExactDuplicates != 2 {
		t.Fatalf("exact duplicates = %d, want 2", report.Duplication.ExactDuplicates)
	}
	// 9 rows carry text (one is null); one text appears three times.
	if report.Duplication.DistinctContents != 7 {
		t.Fatalf("distinct contents = %d, want 7", report.Duplication.DistinctContents)
	}
	if report.TokenLength == nil || report.TokenLength.HighOutliers != 1 {
		t.Fatalf("expected 1 high outlier, got %+v", report.TokenLength)
	}
	if report.Composite < 0 || report.Composite > 1 {
		t.Fatalf("composite %f out of range", report.Composite)
	}
	if report.Grade == "" {
		t.Fatal("missing grade")
	}

	// Row 5 is null-heavy: two of three cells null.
	foundNull := false
	for _, iss := range report.TopIssues {
		if iss.Name == "excessive_nulls" && iss.Rows == 1 {
			foundNull = true
		}
	}
	if !foundNull {
		t.Fatalf("expected excessive_nulls issue, got %+v", report.TopIssues)
	}

	// Column stats cover every column with full row counts.
	if len(report.Columns) != 3 {
		t.Fatalf("expected 3 column stats, got %d", len(report.Columns))
	}
	for _, cs := range report.Columns {
		if cs.Rows != 10 {
			t.Fatalf("column %s rows = %d, want 10", cs.Name, cs.Rows)
		}
	}
}

func TestRunPercentileOutliers(t *testing.T) {
	// One row far above the p99 token length but still under the absolute
	// maximum: only the distribution-relative bound can catch it.
	rows := make([][]string, 0, 201)
	for i := 0; i < 200; i++ {
		rows = append(rows, []string{
			fmt.Sprint(i),
			fmt.Sprintf("sentence number %d has exactly ten whitespace separated word tokens", i),
			"x",
		})
	}
	rows = append(rows, []string{"200", strings.Repeat("word ", 5000), "x"})

	report, err := testEngine(2).Run(context.Background(), NewSliceSource("mem", testColumns, rows))
	if err != nil {
		t.Fatal(err)
	}
	if report.TokenLength == nil || report.TokenLength.HighOutliers != 1 {
		t.Fatalf("expected 1 high outlier, got %+v", report.TokenLength)
	}
	found := false
	for _, iss := range report.TopIssues {
		if iss.Name == "above_p99" && iss.Rows == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected above_p99 issue, got %+v", report.TopIssues)
	}
}

func TestRunDuplicateIDColumn(t *testing.T) {
	rows := [][]string{
		{"1", "the first sentence carries enough tokens to pass", "a"},
		{"1", "a second sentence that shares nothing with the first", "b"},
		{"2", "and a third sentence rounding out the tiny corpus", "a"},
	}
	report, err := testEngine(1).Run(context.Background(), NewSliceSource("mem", testColumns, rows))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, iss := range report.TopIssues {
		if iss.Name == "duplicate_ids" && iss.Column == "id" && iss.Rows == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected duplicate_ids issue on id column, got %+v", report.TopIssues)
	}
}

func TestRunShardInvariance(t *testing.T) {
	single, err := testEngine(1).Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
	if err != nil {
		t.Fatal(err)
	}
	sharded, err := testEngine(4).Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
	if err != nil {
		t.Fatal(err)
	}

	if single.Composite != sharded.Composite {
		t.Fatalf("composite differs across shard counts: %f vs %f", single.Composite, sharded.Composite)
	}
	if single.Duplication.ExactDuplicates != sharded.Duplication.ExactDuplicates {
		t.Fatal("duplicate count depends on shard count")
	}
	if single.Rows != sharded.Rows {
		t.Fatal("row count depends on shard count")
	}
	for i := range single.Scores {
		if single.Scores[i].FlaggedRows != sharded.Scores[i].FlaggedRows {
			t.Fatalf("category %s flagged rows differ: %d vs %d",
				single.Scores[i].Category, single.Scores[i].FlaggedRows, sharded.Scores[i].FlaggedRows)
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	run := func() *score.Report {
		r, err := testEngine(1).Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	a, errA := run().Canonical()
	b, errB := run().Canonical()
	if errA != nil || errB != nil {
		t.Fatal(errA, errB)
	}
	if string(a) != string(b) {
		t.Fatalf("reruns over identical data must be byte-identical:\n%s\n%s", a, b)
	}
}

func TestRunFatalSourcePartialReport(t *testing.T) {
	src := NewSliceSource("mem", testColumns, tenRows())
	src.FailAt = 6
	src.FailErr = errors.New("disk gone")

	report, err := testEngine(1).Run(context.Background(), src)
	if err == nil {
		t.Fatal("fatal source error must surface")
	}
	if !dgerrors.IsCode(err, dgerrors.CodeFatalSource) {
		t.Fatalf("expected fatal source code, got %v", err)
	}
	if report == nil {
		t.Fatal("partial report must still be returned")
	}
	if !report.Incomplete {
		t.Fatal("partial report must be marked incomplete")
	}
	if report.Rows == 0 || report.Rows >= 10 {
		t.Fatalf("partial report should cover some but not all rows, got %d", report.Rows)
	}
}

func TestRunZeroRows(t *testing.T) {
	report, err := testEngine(2).Run(context.Background(), NewSliceSource("mem", testColumns, nil))
	if err != nil {
		t.Fatal(err)
	}
	if !report.ZeroRows {
		t.Fatal("empty source must set ZeroRows")
	}
	if report.Composite != 1 {
		t.Fatalf("empty dataset scores 1, got %f", report.Composite)
	}
}

func TestRunSkipsHeavyWithoutModels(t *testing.T) {
	eng := New(Config{
		Dataset:    "test",
		TextColumn: "text",
		Analyzers:  []analyzer.Analyzer{analyzer.TokenStats{}, analyzer.NewToxicity()},
		Shards:     1,
	})
	report, err := eng.Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
	if err != nil {
		t.Fatal(err)
	}

	var tox *score.AnalyzerStatus
	for i := range report.Analyzers {
		if report.Analyzers[i].Name == "toxicity" {
			tox = &report.Analyzers[i]
		}
	}
	if tox == nil || tox.Status != "skipped" {
		t.Fatalf("toxicity must be skipped without a model, got %+v", tox)
	}
	for _, s := range report.Scores {
		if s.Category == analyzer.CategoryToxicity && !s.Excluded {
			t.Fatal("skipped category must be excluded from the composite")
		}
	}
}

func TestRunHeavyWithModel(t *testing.T) {
	models := analyzer.NewModelRegistry()
	models.RegisterScorer(analyzer.ModelToxicity, constScorer(0.95))

	eng := New(Config{
		Dataset:    "test",
		TextColumn: "text",
		Analyzers:  []analyzer.Analyzer{analyzer.NewToxicity()},
		Models:     models,
		Shards:     2,
	})
	report, err := eng.Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range report.Scores {
		if s.Category == analyzer.CategoryToxicity {
			if s.Excluded {
				t.Fatal("toxicity must run with a registered model")
			}
			// Every non-null text row scores 0.95 and flags.
			if s.FlaggedRows != 9 {
				t.Fatalf("expected 9 toxic rows, got %d", s.FlaggedRows)
			}
		}
	}
}

type constScorer float64

func (c constScorer) Predict(context.Context, []byte) (float64, error) { return float64(c), nil }

type stalledScorer struct{}

func (stalledScorer) Predict(ctx context.Context, _ []byte) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestRunAnalyzerTimeout(t *testing.T) {
	models := analyzer.NewModelRegistry()
	models.RegisterScorer(analyzer.ModelToxicity, stalledScorer{})

	eng := New(Config{
		Dataset:          "test",
		TextColumn:       "text",
		Analyzers:        []analyzer.Analyzer{analyzer.NewToxicity()},
		Models:           models,
		Shards:           1,
		AnalyzerTimeout:  5 * time.Millisecond,
		FailureThreshold: 2,
	})
	report, err := eng.Run(context.Background(), NewSliceSource("mem", testColumns, tenRows()))
	if err != nil {
		t.Fatal(err)
	}

	var tox *score.AnalyzerStatus
	for i := range report.Analyzers {
		if report.Analyzers[i].Name == "toxicity" {
			tox = &report.Analyzers[i]
		}
	}
	if tox == nil || tox.Status != "failed" {
		t.Fatalf("stalled model must demote the analyzer, got %+v", tox)
	}
	if tox.ErrorRows != 2 {
		t.Fatalf("demotion at threshold 2 should stop at 2 error rows, got %d", tox.ErrorRows)
	}
	if report.Incomplete {
		t.Fatal("a stalled analyzer must not fail the run")
	}
	for _, s := range report.Scores {
		if s.Category == analyzer.CategoryToxicity && !s.Excluded {
			t.Fatal("timed-out category must be excluded from the composite")
		}
	}
}

func TestRunDirtyRowsLowerComposite(t *testing.T) {
	clean := [][]string{
		{"1", "the quick brown fox jumps over the lazy dog today", "a"},
		{"2", "a completely different sentence about the weather in spring", "b"},
		{"3", "yet another unique sentence with plenty of ordinary words", "a"},
		{"4", "short sentences are fine when they pass the minimum length", "a"},
		{"5", "this corpus needs enough clean rows to stay above water", "a"},
		{"6", "one more perfectly reasonable training sentence to finish", "b"},
		{"7", "a final unique sentence keeps the baseline corpus spotless", "a"},
	}
	dirty := append(append([][]string{}, clean...),
		[]string{"8", "the quick brown fox jumps over the lazy dog today", "b"},
		[]string{"9", "NULL", "NULL"},
		[]string{"10", strings.Repeat("word ", 10500), "b"},
	)

	cleanReport, err := testEngine(1).Run(context.Background(), NewSliceSource("mem", testColumns, clean))
	if err != nil {
		t.Fatal(err)
	}
	dirtyReport, err := testEngine(1).Run(context.Background(), NewSliceSource("mem", testColumns, dirty))
	if err != nil {
		t.Fatal(err)
	}
	if dirtyReport.Composite >= cleanReport.Composite {
		t.Fatalf("duplicated, null, and outlier rows must cost score: dirty %f >= clean %f",
			dirtyReport.Composite, cleanReport.Composite)
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string                   { return "flaky" }
func (failingAnalyzer) Tier() analyzer.CostTier        { return analyzer.TierCheap }
func (failingAnalyzer) Requires() analyzer.Capability  { return analyzer.CapabilityNone }
func (failingAnalyzer) Category() analyzer.Category    { return analyzer.CategoryNoise }
func (failingAnalyzer) Evaluate(*analyzer.Context, *model.Row) ([]analyzer.Metric, error) {
	return nil, errors.New("always broken")
}

func TestRunDemotesFailingAnalyzer(t *testing.T) {
	eng := New(Config{
		Dataset:          "test",
		TextColumn:       "text",
		Analyzers:        []analyzer.Analyzer{failingAnalyzer{}},
		Shards:           1,
		FailureThreshold: 3,
	})
	rows := make([][]string, 20)
	for i := range rows {
		rows[i] = []string{fmt.Sprint(i), "some text value here", "x"}
	}
	report, err := eng.Run(context.Background(), NewSliceSource("mem", testColumns, rows))
	if err != nil {
		t.Fatal(err)
	}

	var flaky *score.AnalyzerStatus
	for i := range report.Analyzers {
		if report.Analyzers[i].Name == "flaky" {
			flaky = &report.Analyzers[i]
		}
	}
	if flaky == nil || flaky.Status != "failed" {
		t.Fatalf("persistently erroring analyzer must be demoted, got %+v", flaky)
	}
	if flaky.ErrorRows != 3 {
		t.Fatalf("demotion at threshold 3 should stop at 3 error rows, got %d", flaky.ErrorRows)
	}
	if report.Incomplete {
		t.Fatal("demotion must not fail the run itself")
	}
	for _, s := range report.Scores {
		if s.Category == analyzer.CategoryNoise && !s.Excluded {
			t.Fatal("failed category must be excluded from the composite")
		}
	}
}

type sliceEmbedder map[string][]float32

func (s sliceEmbedder) Embed(_ context.Context, text []byte) ([]float32, error) {
	if v, ok := s[string(text)]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestRunNearDuplicates(t *testing.T) {
	rows := [][]string{
		{"1", "alpha", "x"},
		{"2", "alpha prime", "x"},
		{"3", "beta", "x"},
	}
	models := analyzer.NewModelRegistry()
	models.RegisterEmbedder(sliceEmbedder{
		"alpha":       {1, 0, 0},
		"alpha prime": {0.999, 0.001, 0},
		"beta":        {0, 1, 0},
	})
	eng := New(Config{
		Dataset:    "test",
		TextColumn: "text",
		Analyzers:  []analyzer.Analyzer{analyzer.TokenStats{}},
		Models:     models,
		Shards:     2,
	})
	report, err := eng.Run(context.Background(), NewSliceSource("mem", testColumns, rows))
	if err != nil {
		t.Fatal(err)
	}
	if report.Duplication.NearDuplicates != 1 {
		t.Fatalf("expected 1 near duplicate, got %d", report.Duplication.NearDuplicates)
	}
	if len(report.Duplication.Clusters) != 1 || report.Duplication.Clusters[0].Representative != 0 {
		t.Fatalf("expected cluster led by row 0, got %+v", report.Duplication.Clusters)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := testEngine(1).Run(ctx, NewSliceSource("mem", testColumns, tenRows()))
	if err == nil {
		t.Fatal("cancelled run must return an error")
	}
	if report == nil || !report.Incomplete {
		t.Fatal("cancelled run must return a partial report marked incomplete")
	}
}
