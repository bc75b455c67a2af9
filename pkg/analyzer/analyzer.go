// Package analyzer defines the pluggable check framework: a uniform contract
// over rule-based and model-backed analyzers, tagged with cost tier and
// capability requirements.
//
// Analyzers are pure: Evaluate inspects one row and returns metrics. They
// never mutate shared state; the streaming engine folds returned metrics
// into its mergeable running state, which is what keeps sharded execution
// correct. Anything that needs cross-row state (duplicate indexes, quantile
// sketches) lives in the engine, not in analyzers.
package analyzer

import (
	"context"

	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/pkg/schema"
)

// CostTier classifies how expensive an analyzer is per row.
type CostTier int

const (
	// TierCheap analyzers are deterministic rule checks run inline per row.
	TierCheap CostTier = iota
	// TierModerate analyzers do heavier per-row work (regex batteries,
	// classifiers) but need no external capability.
	TierModerate
	// TierHeavy analyzers call a loaded model and run on a bounded pool.
	TierHeavy
)

func (t CostTier) String() string {
	switch t {
	case TierCheap:
		return "cheap"
	case TierModerate:
		return "moderate"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}

// Capability is a runtime prerequisite an analyzer needs before any row is
// processed. Analyzers whose capability is unavailable at run start are
// skipped, never failed.
type Capability int

const (
	CapabilityNone Capability = iota
	CapabilityModel
	CapabilityNetwork
)

func (c Capability) String() string {
	switch c {
	case CapabilityNone:
		return "none"
	case CapabilityModel:
		return "model"
	case CapabilityNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Category groups metrics into the score categories the composite is built
// from. One analyzer contributes to exactly one category.
type Category string

const (
	CategoryMissingness Category = "missingness"
	CategoryDuplication Category = "duplication"
	CategoryOutliers    Category = "outliers"
	CategoryNoise       Category = "noise"
	CategorySchemaDrift Category = "schema_drift"
	CategoryEncoding    Category = "encoding"
	CategoryLanguage    Category = "language"
	CategoryFluency     Category = "fluency"
	CategoryToxicity    Category = "toxicity"
	CategoryStructure   Category = "structure"
	CategoryPII         Category = "pii"
	CategoryBias        Category = "bias"
	CategoryNearDup     Category = "near_duplication"
)

// Metric is one observation an analyzer makes about a row.
type Metric struct {
	// Name identifies the observation (e.g., "token_count", "mojibake").
	Name string

	// Category is the score category this metric counts toward.
	Category Category

	// Column is set for cell-scoped observations, empty for row-scoped.
	Column string

	// Flag marks the row as a finding. Non-flag metrics carry a Value the
	// engine folds into a running estimator instead.
	Flag bool

	// Value is the numeric payload for non-flag metrics (e.g., a token
	// count fed to the quantile sketch, a model score).
	Value float64

	// Message is the human-readable reason attached to flag metrics.
	Message string
}

// Finding is a flag metric bound to the row it was observed on. Findings
// are immutable once recorded for a run.
type Finding struct {
	Row      int64    `json:"row"`
	Analyzer string   `json:"analyzer"`
	Category Category `json:"category"`
	Column   string   `json:"column,omitempty"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

// Context carries the immutable run inputs analyzers evaluate against.
type Context struct {
	// Ctx is the run context; heavy analyzers pass it to model calls.
	Ctx context.Context

	// Schema is the declared (or inferred) dataset schema.
	Schema *schema.Schema

	// TextColumn names the primary free-text column checks apply to.
	TextColumn string

	// Models provides the prediction interfaces heavy analyzers consume.
	Models *ModelRegistry

	// Opts holds the configured thresholds.
	Opts Options
}

// Options holds the analyzer thresholds recognized by the configuration
// surface. Zero values fall back to defaults via Normalize.
type Options struct {
	// Absolute token-length bounds.
	MinTokens int
	MaxTokens int

	// Percentile bounds for token-length outliers.
	LowPercentile  float64
	HighPercentile float64

	// Noise thresholds.
	NonAlphaThreshold   float64
	RepetitionMinRun    int
	NullRowThreshold    float64 // fraction of null cells that flags a row
	UniquenessThreshold float64 // expected uniqueness for id-like columns

	// DeclaredLanguage is the expected language code ("" disables the
	// mismatch check; detection still contributes to the report).
	DeclaredLanguage string

	// Model-score thresholds for heavy analyzers.
	ToxicityThreshold float64
	FluencyThreshold  float64
	BiasThreshold     float64
	PIIThreshold      float64
}

// Normalize fills unset options with defaults. The absolute token bounds
// and percentile defaults follow common text-corpus practice.
func (o Options) Normalize() Options {
	if o.MinTokens <= 0 {
		o.MinTokens = 5
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 10000
	}
	if o.LowPercentile <= 0 {
		o.LowPercentile = 0.01
	}
	if o.HighPercentile <= 0 {
		o.HighPercentile = 0.99
	}
	if o.NonAlphaThreshold <= 0 {
		o.NonAlphaThreshold = 0.5
	}
	if o.RepetitionMinRun <= 0 {
		o.RepetitionMinRun = 5
	}
	if o.NullRowThreshold <= 0 {
		o.NullRowThreshold = 0.5
	}
	if o.UniquenessThreshold <= 0 {
		o.UniquenessThreshold = 0.99
	}
	if o.ToxicityThreshold <= 0 {
		o.ToxicityThreshold = 0.8
	}
	if o.FluencyThreshold <= 0 {
		o.FluencyThreshold = 0.3
	}
	if o.BiasThreshold <= 0 {
		o.BiasThreshold = 0.8
	}
	if o.PIIThreshold <= 0 {
		o.PIIThreshold = 0.5
	}
	return o
}

// Text returns the row's text-column value, reporting false when the
// column is absent or holds a null sentinel. Missing text is the null
// check's concern; text-content checks skip such rows.
func (rc *Context) Text(row *model.Row) ([]byte, bool) {
	text, ok := row.Value(rc.TextColumn)
	if !ok || model.IsNullValue(text) {
		return nil, false
	}
	return text, true
}

// Analyzer is the common contract for all checks.
type Analyzer interface {
	// Name returns the analyzer identifier. Together with its
	// configuration it versions results: metrics from different
	// configurations never mix silently.
	Name() string

	// Tier returns the analyzer's cost tier.
	Tier() CostTier

	// Requires returns the capability the analyzer needs at run start.
	Requires() Capability

	// Category returns the score category the analyzer contributes to.
	Category() Category

	// Evaluate inspects one row and returns metrics. It must not retain
	// the row or mutate shared state. A returned error counts against the
	// analyzer's failure budget but never halts other analyzers.
	Evaluate(rc *Context, row *model.Row) ([]Metric, error)
}
