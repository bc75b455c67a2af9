package analyzer

import (
	"bytes"
	"fmt"
	"regexp"
	"unicode"

	"github.com/datagrade/datagrade/internal/model"
)

// Structural noise patterns. Markup and log lines are the dominant
// contaminants in scraped text corpora.
var (
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	logLinePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)
	codePattern    = regexp.MustCompile(`(?:\bdef |\bfunc |\bclass |\breturn\b|[;{}]\s*$|=>|\bimport |#include\b)`)
)

// Noise flags text rows dominated by non-linguistic content: low alphabetic
// ratio, long repeated-token runs, embedded markup, code fragments, and
// log lines.
type Noise struct{}

func (Noise) Name() string         { return "noise" }
func (Noise) Tier() CostTier       { return TierModerate }
func (Noise) Requires() Capability { return CapabilityNone }
func (Noise) Category() Category   { return CategoryNoise }

func (Noise) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok || len(text) == 0 {
		return nil, nil
	}

	var metrics []Metric

	if ratio := nonAlphaRatio(text); ratio > rc.Opts.NonAlphaThreshold {
		metrics = append(metrics, Metric{
			Name:     "non_alpha",
			Category: CategoryNoise,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("%.0f%% of characters are non-alphabetic", ratio*100),
		})
	}

	if run, word := longestTokenRun(text); run >= rc.Opts.RepetitionMinRun {
		metrics = append(metrics, Metric{
			Name:     "repetition",
			Category: CategoryNoise,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("token %q repeated %d times in a row", word, run),
		})
	}

	if htmlTagPattern.Match(text) {
		metrics = append(metrics, Metric{
			Name:     "html_markup",
			Category: CategoryNoise,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  "text contains HTML markup",
		})
	}
	if logLinePattern.Match(text) {
		metrics = append(metrics, Metric{
			Name:     "log_content",
			Category: CategoryNoise,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  "text contains log-style timestamps",
		})
	}
	if codePattern.Match(text) {
		metrics = append(metrics, Metric{
			Name:     "code_content",
			Category: CategoryNoise,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  "text contains code fragments",
		})
	}

	return metrics, nil
}

// nonAlphaRatio returns the fraction of non-space characters that are not
// letters. Whitespace is excluded from the denominator so that normal word
// spacing does not dilute the signal.
func nonAlphaRatio(text []byte) float64 {
	var letters, others int
	for _, r := range string(text) {
		switch {
		case unicode.IsSpace(r):
		case unicode.IsLetter(r):
			letters++
		default:
			others++
		}
	}
	total := letters + others
	if total == 0 {
		return 0
	}
	return float64(others) / float64(total)
}

// longestTokenRun returns the longest run of an identical whitespace token
// and the token itself. Comparison is case-insensitive.
func longestTokenRun(text []byte) (int, string) {
	fields := bytes.Fields(text)
	if len(fields) == 0 {
		return 0, ""
	}
	best, run := 1, 1
	bestWord := fields[0]
	for i := 1; i < len(fields); i++ {
		if bytes.EqualFold(fields[i], fields[i-1]) {
			run++
			if run > best {
				best = run
				bestWord = fields[i]
			}
		} else {
			run = 1
		}
	}
	return best, string(bestWord)
}
