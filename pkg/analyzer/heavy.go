package analyzer

import (
	"fmt"

	"github.com/datagrade/datagrade/internal/model"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
)

// scorerAnalyzer is the shared shape of the model-backed checks: call one
// Scorer on the text column, flag the row when the score crosses the
// configured threshold. flagAbove distinguishes "high score is bad"
// (toxicity, bias) from "low score is bad" (fluency).
type scorerAnalyzer struct {
	name      string
	model     string
	category  Category
	flagName  string
	flagAbove bool
	threshold func(Options) float64
}

func (s scorerAnalyzer) Name() string         { return s.name }
func (s scorerAnalyzer) Tier() CostTier       { return TierHeavy }
func (s scorerAnalyzer) Requires() Capability { return CapabilityModel }
func (s scorerAnalyzer) Category() Category   { return s.category }

func (s scorerAnalyzer) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok || len(text) == 0 {
		return nil, nil
	}
	scorer, ok := rc.Models.Scorer(s.model)
	if !ok {
		return nil, dgerrors.CapabilityUnavailable(s.name, s.model)
	}
	score, err := scorer.Predict(rc.Ctx, text)
	if err != nil {
		return nil, dgerrors.AnalyzerFailure(s.name, err)
	}

	metrics := []Metric{{
		Name:     s.name + "_score",
		Category: s.category,
		Column:   rc.TextColumn,
		Value:    score,
	}}
	thresh := s.threshold(rc.Opts)
	if (s.flagAbove && score >= thresh) || (!s.flagAbove && score < thresh) {
		rel := "above"
		if !s.flagAbove {
			rel = "below"
		}
		metrics = append(metrics, Metric{
			Name:     s.flagName,
			Category: s.category,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("score %.2f %s threshold %.2f", score, rel, thresh),
		})
	}
	return metrics, nil
}

// NewToxicity returns the model-backed toxicity check.
func NewToxicity() Analyzer {
	return scorerAnalyzer{
		name:      "toxicity",
		model:     ModelToxicity,
		category:  CategoryToxicity,
		flagName:  "toxic_content",
		flagAbove: true,
		threshold: func(o Options) float64 { return o.ToxicityThreshold },
	}
}

// NewFluency returns the model-backed fluency check. Low scores flag.
func NewFluency() Analyzer {
	return scorerAnalyzer{
		name:      "fluency",
		model:     ModelFluency,
		category:  CategoryFluency,
		flagName:  "low_fluency",
		flagAbove: false,
		threshold: func(o Options) float64 { return o.FluencyThreshold },
	}
}

// NewBias returns the model-backed bias check.
func NewBias() Analyzer {
	return scorerAnalyzer{
		name:      "bias",
		model:     ModelBias,
		category:  CategoryBias,
		flagName:  "biased_content",
		flagAbove: true,
		threshold: func(o Options) float64 { return o.BiasThreshold },
	}
}

// NewPII returns the model-backed personally-identifiable-information check.
func NewPII() Analyzer {
	return scorerAnalyzer{
		name:      "pii",
		model:     ModelPII,
		category:  CategoryPII,
		flagName:  "pii_content",
		flagAbove: true,
		threshold: func(o Options) float64 { return o.PIIThreshold },
	}
}

// StructureCheck is the classifier-backed structural-anomaly check: the
// model labels the dominant structure of the text (prose, table, boilerplate
// and so on) and non-prose labels flag the row.
type StructureCheck struct{}

func (StructureCheck) Name() string         { return "structure" }
func (StructureCheck) Tier() CostTier       { return TierHeavy }
func (StructureCheck) Requires() Capability { return CapabilityModel }
func (StructureCheck) Category() Category   { return CategoryStructure }

func (StructureCheck) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok || len(text) == 0 {
		return nil, nil
	}
	cls, ok := rc.Models.Classifier(ModelStructure)
	if !ok {
		return nil, dgerrors.CapabilityUnavailable("structure", ModelStructure)
	}
	label, conf, err := cls.Classify(rc.Ctx, text)
	if err != nil {
		return nil, dgerrors.AnalyzerFailure("structure", err)
	}
	if label == "prose" || label == "" {
		return nil, nil
	}
	return []Metric{{
		Name:     "structural_anomaly",
		Category: CategoryStructure,
		Column:   rc.TextColumn,
		Flag:     true,
		Message:  fmt.Sprintf("classified as %s (%.2f)", label, conf),
	}}, nil
}
