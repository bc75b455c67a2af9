// Package score turns accumulated findings into category sub-scores, a
// weighted composite in [0, 1], and the final quality report.
package score

import (
	"math"
	"sort"

	"github.com/datagrade/datagrade/pkg/analyzer"
)

// DefaultRateCap is the flagged-row rate at which a category sub-score
// bottoms out at 0. Half the corpus flagged is treated as total loss for
// that category; anything beyond cannot make the score more negative.
const DefaultRateCap = 0.5

// Grade thresholds on the composite score.
const (
	GradeExcellent      = "Excellent"
	GradeGood           = "Good"
	GradeFair           = "Fair"
	GradeNeedsAttention = "Needs Attention"
)

// Weights maps score categories to their relative weight in the composite.
type Weights map[analyzer.Category]float64

// DefaultWeights returns equal weight for every category. Renormalization
// at composite time makes the absolute values irrelevant.
func DefaultWeights() Weights {
	w := Weights{}
	for _, c := range []analyzer.Category{
		analyzer.CategoryMissingness,
		analyzer.CategoryDuplication,
		analyzer.CategoryOutliers,
		analyzer.CategoryNoise,
		analyzer.CategorySchemaDrift,
		analyzer.CategoryEncoding,
		analyzer.CategoryLanguage,
		analyzer.CategoryFluency,
		analyzer.CategoryToxicity,
		analyzer.CategoryStructure,
		analyzer.CategoryPII,
		analyzer.CategoryBias,
		analyzer.CategoryNearDup,
	} {
		w[c] = 1
	}
	return w
}

// CategoryScore is one category's contribution to the composite.
type CategoryScore struct {
	Category    analyzer.Category `json:"category"`
	Score       float64           `json:"score"`
	Weight      float64           `json:"weight"` // renormalized weight actually applied
	FlaggedRows int64             `json:"flagged_rows"`
	Excluded    bool              `json:"excluded"` // skipped or failed; carries no weight
}

// SubScore maps a flagged-row rate to [0, 1]. Zero flagged rows is a
// perfect 1; the score declines linearly and bottoms out at rateCap.
func SubScore(flagged, rows int64, rateCap float64) float64 {
	if rows <= 0 {
		return 1
	}
	if rateCap <= 0 {
		rateCap = DefaultRateCap
	}
	rate := float64(flagged) / float64(rows)
	return 1 - math.Min(1, rate/rateCap)
}

// Composite computes the weighted composite score. Excluded categories
// (skipped or failed analyzers) carry no weight; the remaining weights are
// renormalized to sum to 1, so a run with heavy checks skipped scores
// identically to one where those categories were assigned zero weight.
// All categories excluded yields 1 with no weight applied.
func Composite(scores []CategoryScore, weights Weights) (float64, []CategoryScore) {
	var total float64
	for _, s := range scores {
		if s.Excluded {
			continue
		}
		total += weights[s.Category]
	}

	out := make([]CategoryScore, len(scores))
	copy(out, scores)
	if total == 0 {
		for i := range out {
			out[i].Weight = 0
		}
		return 1, out
	}

	var composite float64
	for i := range out {
		if out[i].Excluded {
			out[i].Weight = 0
			continue
		}
		w := weights[out[i].Category] / total
		out[i].Weight = w
		composite += w * out[i].Score
	}
	// Clamp against float drift at the boundaries.
	return math.Max(0, math.Min(1, composite)), out
}

// GradeFor maps a composite score onto the grade ladder.
func GradeFor(score float64) string {
	switch {
	case score >= 0.9:
		return GradeExcellent
	case score >= 0.75:
		return GradeGood
	case score >= 0.6:
		return GradeFair
	default:
		return GradeNeedsAttention
	}
}

// Issue is one aggregated problem in the report, ranked by affected rows.
type Issue struct {
	Category analyzer.Category `json:"category"`
	Name     string            `json:"name"`
	Column   string            `json:"column,omitempty"`
	Rows     int64             `json:"rows"`
	Message  string            `json:"message,omitempty"`
}

// RankIssues orders issues by affected row count descending, breaking ties
// by category then name so report output is deterministic.
func RankIssues(issues []Issue, limit int) []Issue {
	out := make([]Issue, len(issues))
	copy(out, issues)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rows != out[j].Rows {
			return out[i].Rows > out[j].Rows
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
