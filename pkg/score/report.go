package score

import (
	"encoding/json"
	"time"

	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/dedup"
)

// ColumnStat is the per-column summary in the report.
type ColumnStat struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Rows            int64   `json:"rows"`
	NullRatio       float64 `json:"null_ratio"`
	Distinct        int64   `json:"distinct"`
	DistinctApprox  bool    `json:"distinct_approx,omitempty"`
	DistinctError   float64 `json:"distinct_error,omitempty"`
	UniquenessRatio float64 `json:"uniqueness_ratio"`
	Entropy         float64 `json:"entropy"`
	EntropyApprox   bool    `json:"entropy_approx,omitempty"`
	TypeErrors      int64   `json:"type_errors"`
	FormatErrors    int64   `json:"format_errors"`
	MinValue        string  `json:"min_value,omitempty"`
	MaxValue        string  `json:"max_value,omitempty"`
}

// TokenLengthStats summarizes the token-length distribution of the text
// column, read from the quantile sketch at finalize.
type TokenLengthStats struct {
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	P01          float64 `json:"p01"`
	Median       float64 `json:"median"`
	P99          float64 `json:"p99"`
	Degraded     bool    `json:"degraded,omitempty"` // sketch collapsed buckets
	LowOutliers  int64   `json:"low_outliers"`
	HighOutliers int64   `json:"high_outliers"`
}

// AnalyzerStatus records one analyzer's final lifecycle state.
type AnalyzerStatus struct {
	Name      string `json:"name"`
	Tier      string `json:"tier"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	ErrorRows int64  `json:"error_rows,omitempty"`
}

// DuplicationStats summarizes exact and near duplicates.
type DuplicationStats struct {
	ExactDuplicates  int64           `json:"exact_duplicates"`
	DistinctContents int64           `json:"distinct_contents"`
	NearDuplicates   int64           `json:"near_duplicates"`
	Clusters         []dedup.Cluster `json:"clusters,omitempty"`
	VectorsTruncated int64           `json:"vectors_truncated,omitempty"`
}

// Report is the final output of one scoring run. Reports are immutable once
// built; rerunning the same data with the same configuration produces a
// byte-identical document except for run identity and timing.
type Report struct {
	RunID     string        `json:"run_id"`
	Dataset   string        `json:"dataset"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Rows            int64 `json:"rows"`
	UnprocessedRows int64 `json:"unprocessed_rows,omitempty"`
	Incomplete      bool  `json:"incomplete,omitempty"`
	ZeroRows        bool  `json:"zero_rows,omitempty"`

	Composite float64         `json:"composite"`
	Grade     string          `json:"grade"`
	Scores    []CategoryScore `json:"scores"`

	Columns     []ColumnStat       `json:"columns"`
	Languages   map[string]int64   `json:"languages,omitempty"`
	TokenLength *TokenLengthStats  `json:"token_length,omitempty"`
	Duplication DuplicationStats   `json:"duplication"`
	TopIssues   []Issue            `json:"top_issues"`
	Sample      []analyzer.Finding `json:"sample_findings,omitempty"`
	Analyzers   []AnalyzerStatus   `json:"analyzers"`
}

// Canonical returns the report serialized for caching and comparison: run
// identity and timing are zeroed so equal runs over equal data compare
// byte-identical.
func (r *Report) Canonical() ([]byte, error) {
	c := *r
	c.RunID = ""
	c.StartedAt = time.Time{}
	c.Duration = 0
	return json.Marshal(&c)
}

// MarshalIndent renders the report as indented JSON.
func (r *Report) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
