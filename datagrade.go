// Package datagrade provides the library entry point for scoring dataset
// quality.
//
// DataGrade scans large text datasets in a single streaming pass and
// produces a quality report: a composite score in [0,1], per-category
// sub-scores, duplicate statistics, and the issues costing the most rows.
//
// Basic usage:
//
//	// Score a local file with defaults
//	report, err := datagrade.Scan(ctx, "corpus.jsonl")
//
//	// With options
//	report, err := datagrade.Scan(ctx, "corpus.csv",
//	    datagrade.WithTextColumn("content"),
//	    datagrade.WithDeclaredLanguage("en"),
//	)
//
//	// Full engine usage over a custom source
//	eng := engine.New(cfg)
//	report, err := eng.Run(ctx, src)
package datagrade

import (
	"context"

	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/config"
	"github.com/datagrade/datagrade/pkg/engine"
	"github.com/datagrade/datagrade/pkg/schema"
	"github.com/datagrade/datagrade/pkg/score"
	"github.com/datagrade/datagrade/pkg/source"
)

// Option configures a scan.
type Option func(*scanConfig)

type scanConfig struct {
	textColumn string
	language   string
	analyzers  []string
	shards     int
	weights    map[string]float64
	models     *analyzer.ModelRegistry
	schema     *schema.Schema
}

// WithTextColumn sets the column holding the text content.
func WithTextColumn(name string) Option {
	return func(c *scanConfig) { c.textColumn = name }
}

// WithDeclaredLanguage sets the language the dataset claims to be in;
// rows detected in another language become findings.
func WithDeclaredLanguage(code string) Option {
	return func(c *scanConfig) { c.language = code }
}

// WithAnalyzers restricts the scan to the named analyzers.
func WithAnalyzers(names ...string) Option {
	return func(c *scanConfig) { c.analyzers = names }
}

// WithShards sets the worker fan-out.
func WithShards(n int) Option {
	return func(c *scanConfig) { c.shards = n }
}

// WithWeights overrides category weights in the composite score.
func WithWeights(weights map[string]float64) Option {
	return func(c *scanConfig) { c.weights = weights }
}

// WithModels supplies loaded ML models; heavy analyzers whose model is
// absent are skipped, never failed.
func WithModels(models *analyzer.ModelRegistry) Option {
	return func(c *scanConfig) { c.models = models }
}

// WithSchema declares column types up front instead of inferring them.
func WithSchema(s *schema.Schema) Option {
	return func(c *scanConfig) { c.schema = s }
}

// Scan scores a dataset file (CSV, TSV, JSONL, Arrow, or Parquet) and
// returns its quality report. Configuration files and DATAGRADE_*
// environment variables apply; options override both.
func Scan(ctx context.Context, path string, opts ...Option) (*score.Report, error) {
	var sc scanConfig
	for _, opt := range opts {
		opt(&sc)
	}

	// Shallow copy so option overrides never leak into the global config.
	cfg := *config.Global().Get()
	if sc.textColumn != "" {
		cfg.Scan.TextColumn = sc.textColumn
	}
	if sc.language != "" {
		cfg.Analyzers.DeclaredLanguage = sc.language
	}
	if len(sc.analyzers) > 0 {
		cfg.Analyzers.Enabled = sc.analyzers
	}
	if sc.shards > 0 {
		cfg.Scan.Shards = sc.shards
	}
	if sc.weights != nil {
		cfg.Weights = sc.weights
	}

	ecfg, err := cfg.EngineConfig(path)
	if err != nil {
		return nil, err
	}
	ecfg.Models = sc.models
	ecfg.Schema = sc.schema
	if ecfg.Schema == nil {
		inferred, err := source.InferSchema(ctx, path, source.DefaultInferRows)
		if err != nil {
			return nil, err
		}
		ecfg.Schema = inferred
	}

	src, err := source.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return engine.New(ecfg).Run(ctx, src)
}

// Version information
const (
	Version   = "1.0.0"
	GitCommit = "dev"
)
