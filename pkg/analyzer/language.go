package analyzer

import (
	"bytes"
	"fmt"

	"github.com/datagrade/datagrade/internal/model"
)

// Per-language stopword sets used for detection. Function words are the
// most frequent tokens in natural text, so counting hits against each set
// separates the major Latin-script languages reliably at paragraph length.
var stopwords = map[string][]string{
	"en": {"the", "and", "is", "of", "to", "in", "that", "it", "for", "was", "with", "are", "not", "this", "have"},
	"es": {"el", "la", "de", "que", "y", "en", "los", "las", "del", "por", "con", "una", "para", "es", "no"},
	"fr": {"le", "la", "les", "de", "des", "et", "que", "est", "dans", "pour", "une", "qui", "pas", "sur", "avec"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "von", "mit", "den", "ein", "eine", "auf", "sich", "auch", "werden"},
	"pt": {"o", "a", "de", "que", "e", "do", "da", "em", "um", "para", "com", "uma", "os", "no", "se"},
	"it": {"il", "di", "che", "la", "e", "per", "un", "non", "sono", "una", "con", "del", "gli", "della", "questo"},
	"nl": {"de", "het", "een", "van", "en", "is", "dat", "op", "niet", "met", "zijn", "voor", "aan", "er", "maar"},
}

// minDetectTokens is the shortest text worth attempting detection on;
// below it the stopword counts are pure noise.
const minDetectTokens = 3

// DetectLanguage returns the best-guess language code for text and the
// fraction of tokens that matched that language's stopword set. Empty code
// means no language scored at all.
func DetectLanguage(text []byte) (code string, confidence float64) {
	fields := bytes.Fields(bytes.ToLower(text))
	if len(fields) < minDetectTokens {
		return "", 0
	}
	best, bestHits := "", 0
	for lang, words := range stopwords {
		hits := 0
		for _, f := range fields {
			tok := bytes.TrimFunc(f, func(r rune) bool {
				return r < 'a' || r > 'z'
			})
			for _, w := range words {
				if string(tok) == w {
					hits++
					break
				}
			}
		}
		if hits > bestHits || (hits == bestHits && hits > 0 && lang < best) {
			best, bestHits = lang, hits
		}
	}
	if bestHits == 0 {
		return "", 0
	}
	return best, float64(bestHits) / float64(len(fields))
}

// LanguageCheck detects the language of the text column and flags rows that
// disagree with the declared corpus language. Detection also runs when no
// language is declared so the report can surface the observed mix.
type LanguageCheck struct{}

func (LanguageCheck) Name() string         { return "language" }
func (LanguageCheck) Tier() CostTier       { return TierModerate }
func (LanguageCheck) Requires() Capability { return CapabilityNone }
func (LanguageCheck) Category() Category   { return CategoryLanguage }

func (LanguageCheck) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok || len(text) == 0 {
		return nil, nil
	}
	code, conf := DetectLanguage(text)
	if code == "" {
		return nil, nil
	}

	metrics := []Metric{{
		Name:     "detected_language_" + code,
		Category: CategoryLanguage,
		Column:   rc.TextColumn,
		Value:    conf,
	}}
	if declared := rc.Opts.DeclaredLanguage; declared != "" && code != declared {
		metrics = append(metrics, Metric{
			Name:     "language_mismatch",
			Category: CategoryLanguage,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("detected %s, declared %s", code, declared),
		})
	}
	return metrics, nil
}
