package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/score"
)

func TestRenderReport(t *testing.T) {
	r := &score.Report{
		Dataset:   "corpus.jsonl",
		Rows:      12500,
		Duration:  4200 * time.Millisecond,
		Composite: 0.81,
		Grade:     score.GradeGood,
		Scores: []score.CategoryScore{
			{Category: analyzer.CategoryNoise, Score: 0.9, Weight: 0.5, FlaggedRows: 120},
			{Category: analyzer.CategoryToxicity, Excluded: true},
		},
		Duplication: score.DuplicationStats{ExactDuplicates: 40, DistinctContents: 12000},
		TopIssues: []score.Issue{
			{Category: analyzer.CategoryNoise, Name: "html_markup", Rows: 80},
		},
		Analyzers: []score.AnalyzerStatus{
			{Name: "toxicity", Tier: "heavy", Status: "skipped", Reason: "model unavailable"},
			{Name: "noise", Tier: "moderate", Status: "completed"},
		},
	}

	var buf bytes.Buffer
	RenderReport(&buf, r)
	out := buf.String()

	for _, want := range []string{
		"corpus.jsonl",
		"12.5K",
		"Good",
		"html_markup",
		"excluded",
		"model unavailable",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q", want)
		}
	}
	if strings.Contains(out, "PARTIAL") {
		t.Error("complete report must not warn about partial results")
	}
}

func TestRenderPartialReport(t *testing.T) {
	var buf bytes.Buffer
	RenderReport(&buf, &score.Report{Dataset: "d.csv", Incomplete: true})
	if !strings.Contains(buf.String(), "PARTIAL") {
		t.Error("incomplete report must be marked partial")
	}
}

func TestScoreBarBounds(t *testing.T) {
	full := scoreBar(1.5)
	empty := scoreBar(-0.2)
	if !strings.Contains(full, strings.Repeat("█", barWidth)) {
		t.Error("overflow score must render a full bar")
	}
	if !strings.Contains(empty, strings.Repeat("░", barWidth)) {
		t.Error("negative score must render an empty bar")
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int64]string{
		999:     "999",
		1500:    "1.5K",
		2400000: "2.4M",
	}
	for in, want := range cases {
		if got := formatNumber(in); got != want {
			t.Errorf("formatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}
