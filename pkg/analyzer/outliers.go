package analyzer

import (
	"fmt"

	"github.com/datagrade/datagrade/internal/model"
)

// Outliers flags text rows whose token length falls outside the absolute
// configured bounds. Percentile-based bounds need the full distribution and
// are applied at finalize time from the token-length quantile sketch; only
// the absolute bounds can be decided per row.
type Outliers struct{}

func (Outliers) Name() string         { return "length_outliers" }
func (Outliers) Tier() CostTier       { return TierCheap }
func (Outliers) Requires() Capability { return CapabilityNone }
func (Outliers) Category() Category   { return CategoryOutliers }

func (Outliers) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok {
		return nil, nil
	}
	n := CountTokens(text)
	switch {
	case n < rc.Opts.MinTokens:
		return []Metric{{
			Name:     "too_short",
			Category: CategoryOutliers,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("%d tokens, below minimum %d", n, rc.Opts.MinTokens),
		}}, nil
	case n > rc.Opts.MaxTokens:
		return []Metric{{
			Name:     "too_long",
			Category: CategoryOutliers,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("%d tokens, above maximum %d", n, rc.Opts.MaxTokens),
		}}, nil
	}
	return nil, nil
}
