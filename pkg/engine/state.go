package engine

import (
	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/pkg/analyzer"
	"github.com/datagrade/datagrade/pkg/dedup"
	"github.com/datagrade/datagrade/pkg/sketch"
)

// issueKey identifies one aggregated issue line in the report.
type issueKey struct {
	category analyzer.Category
	name     string
	column   string
}

// shardState is the running state one shard accumulates. Every field is
// mergeable: merging two shard states yields exactly the state a single
// shard would have produced over the union of their rows, which is what
// makes the composite independent of shard count and row order.
type shardState struct {
	rows      int64
	rowErrors int64

	flagged map[analyzer.Category]int64 // rows flagged at least once per category
	issues  map[issueKey]int64
	sample  []analyzer.Finding
	cap     int

	tokens    *sketch.QuantileSketch
	columns   map[string]*sketch.ColumnCounter
	near      *dedup.NearIndex
	languages map[string]int64
}

func newShardState(cfg *Config) *shardState {
	return &shardState{
		flagged:   make(map[analyzer.Category]int64),
		issues:    make(map[issueKey]int64),
		cap:       cfg.SampleCap,
		tokens:    sketch.NewQuantileSketch(cfg.QuantileEpsilon),
		columns:   make(map[string]*sketch.ColumnCounter),
		near:      dedup.NewNearIndex(cfg.NearDupThreshold, cfg.VectorCapacity),
		languages: make(map[string]int64),
	}
}

// observeColumns folds a row's cells into the per-column counters.
func (s *shardState) observeColumns(row *model.Row) {
	for i, name := range row.Columns {
		cc := s.columns[name]
		if cc == nil {
			cc = sketch.NewColumnCounter(0)
			s.columns[name] = cc
		}
		if row.IsMissing(i) {
			cc.ObserveNull()
		} else {
			cc.Observe(row.Values[i])
		}
	}
}

// record folds one analyzer's metrics for one row. flaggedCats tracks which
// categories already flagged this row so a row counts once per category no
// matter how many findings it accumulates.
func (s *shardState) record(a analyzer.Analyzer, row *model.Row, metrics []analyzer.Metric, flaggedCats map[analyzer.Category]bool) {
	for _, m := range metrics {
		if !m.Flag {
			s.recordValue(m)
			continue
		}
		if !flaggedCats[m.Category] {
			flaggedCats[m.Category] = true
			s.flagged[m.Category]++
		}
		s.issues[issueKey{m.Category, m.Name, m.Column}]++
		if m.Column != "" {
			if cc := s.columns[m.Column]; cc != nil {
				switch m.Name {
				case "type_mismatch":
					cc.TypeErrors++
				case "unparseable_timestamp":
					cc.FormatErrors++
				}
			}
		}
		if len(s.sample) < s.cap {
			s.sample = append(s.sample, analyzer.Finding{
				Row:      row.Index,
				Analyzer: a.Name(),
				Category: m.Category,
				Column:   m.Column,
				Name:     m.Name,
				Message:  m.Message,
			})
		}
	}
}

const languageMetricPrefix = "detected_language_"

func (s *shardState) recordValue(m analyzer.Metric) {
	switch {
	case m.Name == analyzer.MetricTokenCount:
		s.tokens.Update(m.Value)
	case len(m.Name) > len(languageMetricPrefix) && m.Name[:len(languageMetricPrefix)] == languageMetricPrefix:
		s.languages[m.Name[len(languageMetricPrefix):]]++
	}
}

// merge folds other into s. Merge order does not affect the result beyond
// which sample findings survive the cap.
func (s *shardState) merge(other *shardState) {
	s.rows += other.rows
	s.rowErrors += other.rowErrors
	for c, n := range other.flagged {
		s.flagged[c] += n
	}
	for k, n := range other.issues {
		s.issues[k] += n
	}
	for _, f := range other.sample {
		if len(s.sample) >= s.cap {
			break
		}
		s.sample = append(s.sample, f)
	}
	s.tokens.Merge(other.tokens)
	for name, cc := range other.columns {
		if mine := s.columns[name]; mine != nil {
			mine.Merge(cc)
		} else {
			s.columns[name] = cc
		}
	}
	s.near.Merge(other.near)
	for lang, n := range other.languages {
		s.languages[lang] += n
	}
}
