package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/dedup"
	"github.com/datagrade/datagrade/pkg/score"
)

// finalize turns the merged shard state into the report. This is the only
// place distribution-wide quantities (percentiles, duplicate winners,
// cluster membership) are computed; everything before it is mergeable
// per-shard accumulation.
func (e *Engine) finalize(state *shardState, exact *dedup.ExactIndex,
	runs []*analyzer.Run, nearRun *analyzer.Run,
	runID string, started time.Time, dataset string) *score.Report {

	cfg := e.cfg
	report := &score.Report{
		RunID:     runID,
		Dataset:   dataset,
		StartedAt: started,
		Duration:  time.Since(started),
		Rows:      state.rows,
	}

	// Engine-side duplicate findings join the issue table like any other.
	if n := exact.DuplicateCount(); n > 0 {
		state.issues[issueKey{analyzer.CategoryDuplication, "exact_duplicate", cfg.TextColumn}] = n
		state.flagged[analyzer.CategoryDuplication] = n
	}
	clusters := state.near.Clusters()
	if n := state.near.NearDuplicateCount(); n > 0 {
		state.issues[issueKey{analyzer.CategoryNearDup, "near_duplicate", cfg.TextColumn}] = n
		state.flagged[analyzer.CategoryNearDup] = n
	}
	e.foldPercentileOutliers(state)
	e.foldColumnChecks(state)

	report.Duplication = score.DuplicationStats{
		ExactDuplicates:  exact.DuplicateCount(),
		DistinctContents: exact.DistinctCount(),
		NearDuplicates:   state.near.NearDuplicateCount(),
		Clusters:         clusters,
		VectorsTruncated: state.near.Truncated(),
	}

	report.Columns = e.columnStats(state)
	report.TokenLength = e.tokenStats(state)
	if len(state.languages) > 0 {
		report.Languages = state.languages
	}

	// Analyzer statuses, including the engine-internal near-duplicate run.
	all := append(append([]*analyzer.Run{}, runs...), nearRun)
	for _, r := range all {
		report.Analyzers = append(report.Analyzers, score.AnalyzerStatus{
			Name:      r.Analyzer.Name(),
			Tier:      r.Analyzer.Tier().String(),
			Status:    r.Status().String(),
			Reason:    r.Reason(),
			ErrorRows: r.ErrorRows(),
		})
	}

	report.Scores = e.categoryScores(state, runs, nearRun)
	report.Composite, report.Scores = score.Composite(report.Scores, cfg.Weights)
	if state.rows == 0 {
		report.ZeroRows = true
		report.Composite = 1
	}
	report.Grade = score.GradeFor(report.Composite)

	var issues []score.Issue
	for k, n := range state.issues {
		issues = append(issues, score.Issue{
			Category: k.category,
			Name:     k.name,
			Column:   k.column,
			Rows:     n,
		})
	}
	report.TopIssues = score.RankIssues(issues, cfg.TopIssues)
	report.Sample = state.sample

	return report
}

// foldPercentileOutliers adds the distribution-relative token-length
// outliers to the issue table. The per-row absolute-bound findings are
// subtracted so no row counts twice; the remainder is clamped because the
// sketch cannot split a percentile's own bucket.
func (e *Engine) foldPercentileOutliers(state *shardState) {
	if state.tokens.Count() == 0 {
		return
	}
	opts := e.cfg.Options
	col := e.cfg.TextColumn

	below := int64(state.tokens.CountBelow(state.tokens.Quantile(opts.LowPercentile)))
	below -= state.issues[issueKey{analyzer.CategoryOutliers, "too_short", col}]
	if below > 0 {
		state.issues[issueKey{analyzer.CategoryOutliers, "below_p01", col}] = below
		state.flagged[analyzer.CategoryOutliers] += below
	}

	above := int64(state.tokens.CountAbove(state.tokens.Quantile(opts.HighPercentile)))
	above -= state.issues[issueKey{analyzer.CategoryOutliers, "too_long", col}]
	if above > 0 {
		state.issues[issueKey{analyzer.CategoryOutliers, "above_p99", col}] = above
		state.flagged[analyzer.CategoryOutliers] += above
	}
}

// foldColumnChecks applies finalize-time column checks: an identifier-like
// column whose uniqueness ratio falls below the configured threshold gets a
// duplication finding covering its repeated values.
func (e *Engine) foldColumnChecks(state *shardState) {
	for name, cc := range state.columns {
		if !identifierColumn(name) {
			continue
		}
		present := int64(cc.Rows) - int64(cc.Nulls)
		if present < 2 || cc.UniquenessRatio() >= e.cfg.Options.UniquenessThreshold {
			continue
		}
		repeated := present - int64(cc.Distinct())
		if repeated <= 0 {
			continue
		}
		state.issues[issueKey{analyzer.CategoryDuplication, "duplicate_ids", name}] = repeated
		state.flagged[analyzer.CategoryDuplication] += repeated
	}
}

// identifierColumn reports whether a column name denotes a row identifier.
func identifierColumn(name string) bool {
	switch lower := strings.ToLower(name); {
	case lower == "id" || lower == "uuid" || lower == "key":
		return true
	case strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "_key"):
		return true
	}
	return false
}

// categoryScores builds one sub-score per category that has a contributor:
// a configured analyzer, or the engine-side duplicate indexes. A category
// is excluded when every contributor was skipped or failed, which removes
// its weight from the composite.
func (e *Engine) categoryScores(state *shardState, runs []*analyzer.Run, nearRun *analyzer.Run) []score.CategoryScore {
	active := make(map[analyzer.Category]bool)
	present := make(map[analyzer.Category]bool)
	for _, r := range runs {
		c := r.Analyzer.Category()
		present[c] = true
		if s := r.Status(); s == analyzer.StatusCompleted || s == analyzer.StatusRunning {
			active[c] = true
		}
	}
	// Exact duplicates are tracked by the engine itself and always count.
	present[analyzer.CategoryDuplication] = true
	active[analyzer.CategoryDuplication] = true
	present[analyzer.CategoryNearDup] = true
	if s := nearRun.Status(); s == analyzer.StatusCompleted || s == analyzer.StatusRunning {
		active[analyzer.CategoryNearDup] = true
	}

	cats := make([]analyzer.Category, 0, len(present))
	for c := range present {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	scores := make([]score.CategoryScore, 0, len(cats))
	for _, c := range cats {
		flagged := state.flagged[c]
		scores = append(scores, score.CategoryScore{
			Category:    c,
			Score:       score.SubScore(flagged, state.rows, score.DefaultRateCap),
			FlaggedRows: flagged,
			Excluded:    !active[c],
		})
	}
	return scores
}

func (e *Engine) columnStats(state *shardState) []score.ColumnStat {
	names := make([]string, 0, len(state.columns))
	for name := range state.columns {
		names = append(names, name)
	}
	if e.cfg.Schema != nil {
		// Schema order first, extras appended alphabetically.
		pos := make(map[string]int, len(e.cfg.Schema.Columns))
		for i, c := range e.cfg.Schema.Columns {
			pos[c.Name] = i
		}
		sort.Slice(names, func(i, j int) bool {
			pi, iok := pos[names[i]]
			pj, jok := pos[names[j]]
			if iok != jok {
				return iok
			}
			if iok && jok && pi != pj {
				return pi < pj
			}
			return names[i] < names[j]
		})
	} else {
		sort.Strings(names)
	}

	stats := make([]score.ColumnStat, 0, len(names))
	for _, name := range names {
		cc := state.columns[name]
		typ := ""
		if e.cfg.Schema != nil {
			if col, ok := e.cfg.Schema.Column(name); ok {
				typ = string(col.Type)
			}
		}
		stats = append(stats, score.ColumnStat{
			Name:            name,
			Type:            typ,
			Rows:            int64(cc.Rows),
			NullRatio:       cc.NullRatio(),
			Distinct:        int64(cc.Distinct()),
			DistinctApprox:  cc.DistinctApproximate(),
			DistinctError:   cc.DistinctErrorBound(),
			UniquenessRatio: cc.UniquenessRatio(),
			Entropy:         cc.Entropy(),
			EntropyApprox:   cc.EntropyApproximate(),
			TypeErrors:      int64(cc.TypeErrors),
			FormatErrors:    int64(cc.FormatErrors),
			MinValue:        cc.MinValue(),
			MaxValue:        cc.MaxValue(),
		})
	}
	return stats
}

func (e *Engine) tokenStats(state *shardState) *score.TokenLengthStats {
	if state.tokens.Count() == 0 {
		return nil
	}
	opts := e.cfg.Options
	outliers := func(names ...string) int64 {
		var n int64
		for _, name := range names {
			n += state.issues[issueKey{analyzer.CategoryOutliers, name, e.cfg.TextColumn}]
		}
		return n
	}
	return &score.TokenLengthStats{
		Min:          state.tokens.Min(),
		Max:          state.tokens.Max(),
		P01:          state.tokens.Quantile(opts.LowPercentile),
		Median:       state.tokens.Quantile(0.5),
		P99:          state.tokens.Quantile(opts.HighPercentile),
		Degraded:     state.tokens.Collapsed(),
		LowOutliers:  outliers("too_short", "below_p01"),
		HighOutliers: outliers("too_long", "above_p99"),
	}
}
