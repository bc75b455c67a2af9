package analyzer

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/datagrade/datagrade/internal/model"
	"github.com/datagrade/datagrade/pkg/schema"
)

// --- Null / missingness ---

// NullCheck flags rows whose fraction of null cells exceeds the configured
// threshold. Per-column null ratios come from the engine's column counters;
// this analyzer only produces the row-level finding.
type NullCheck struct{}

func (NullCheck) Name() string         { return "null_check" }
func (NullCheck) Tier() CostTier       { return TierCheap }
func (NullCheck) Requires() Capability { return CapabilityNone }
func (NullCheck) Category() Category   { return CategoryMissingness }

func (NullCheck) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	if len(row.Columns) == 0 {
		return nil, nil
	}
	nulls := 0
	for i := range row.Columns {
		if row.IsMissing(i) {
			nulls++
		}
	}
	frac := float64(nulls) / float64(len(row.Columns))
	if frac >= rc.Opts.NullRowThreshold {
		return []Metric{{
			Name:     "excessive_nulls",
			Category: CategoryMissingness,
			Flag:     true,
			Message:  fmt.Sprintf("%d of %d fields null (%.0f%%)", nulls, len(row.Columns), frac*100),
		}}, nil
	}
	return nil, nil
}

// --- Schema drift ---

// SchemaDrift validates observed cell values against the declared schema.
// Each mismatching cell is one finding; per-column drift counts accumulate
// in the engine's column counters via the metric's Column field.
type SchemaDrift struct{}

func (SchemaDrift) Name() string         { return "schema_drift" }
func (SchemaDrift) Tier() CostTier       { return TierCheap }
func (SchemaDrift) Requires() Capability { return CapabilityNone }
func (SchemaDrift) Category() Category   { return CategorySchemaDrift }

func (SchemaDrift) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	if rc.Schema == nil {
		return nil, nil
	}
	var metrics []Metric
	for i, name := range row.Columns {
		if row.IsMissing(i) {
			continue
		}
		col, ok := rc.Schema.Column(name)
		if !ok || col.Type == schema.TypeTimestamp {
			// Timestamp validation is the timestamp analyzer's job.
			continue
		}
		if !col.Conforms(row.Values[i]) {
			metrics = append(metrics, Metric{
				Name:     "type_mismatch",
				Category: CategorySchemaDrift,
				Column:   name,
				Flag:     true,
				Message:  fmt.Sprintf("value does not conform to declared type %s", col.Type),
			})
		}
	}
	return metrics, nil
}

// --- Timestamp format ---

// TimestampCheck validates timestamp columns against their declared or
// default format patterns. Unparseable values are findings, not errors.
type TimestampCheck struct{}

func (TimestampCheck) Name() string         { return "timestamp_format" }
func (TimestampCheck) Tier() CostTier       { return TierCheap }
func (TimestampCheck) Requires() Capability { return CapabilityNone }
func (TimestampCheck) Category() Category   { return CategorySchemaDrift }

func (TimestampCheck) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	if rc.Schema == nil {
		return nil, nil
	}
	var metrics []Metric
	for i, name := range row.Columns {
		if row.IsMissing(i) {
			continue
		}
		col, ok := rc.Schema.Column(name)
		if !ok || col.Type != schema.TypeTimestamp {
			continue
		}
		if _, ok := schema.ParseTimestamp(row.Values[i], col.Format); !ok {
			metrics = append(metrics, Metric{
				Name:     "unparseable_timestamp",
				Category: CategorySchemaDrift,
				Column:   name,
				Flag:     true,
				Message:  "timestamp does not match declared or known formats",
			})
		}
	}
	return metrics, nil
}

// --- Encoding ---

// Encoding detects non-decodable byte sequences in the text column:
// UTF-8 replacement characters, mojibake artifacts from double-encoded
// Latin-1, and ASCII control characters.
type Encoding struct{}

func (Encoding) Name() string         { return "encoding" }
func (Encoding) Tier() CostTier       { return TierCheap }
func (Encoding) Requires() Capability { return CapabilityNone }
func (Encoding) Category() Category   { return CategoryEncoding }

func (Encoding) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok || len(text) == 0 {
		return nil, nil
	}

	var metrics []Metric
	if !utf8.Valid(text) {
		metrics = append(metrics, Metric{
			Name:     "invalid_utf8",
			Category: CategoryEncoding,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  "text is not valid UTF-8",
		})
		return metrics, nil
	}

	var replacement, mojibake, control int
	prev := rune(0)
	for _, r := range string(text) {
		switch {
		case r == utf8.RuneError:
			replacement++
		case r <= 0x1F && r != '\t' && r != '\n' && r != '\r':
			control++
		case (prev == 'Ã' || prev == 'Â') && ((r >= ' ' && r <= '~') || (r >= 0x80 && r <= 0xBF)):
			// A stray Ã/Â followed by printable ASCII or a Latin-1
			// supplement rune is the classic UTF-8-decoded-as-Latin-1
			// artifact: the second byte of the original sequence decodes
			// into U+0080..U+00BF.
			mojibake++
		}
		prev = r
	}

	if replacement > 0 {
		metrics = append(metrics, Metric{
			Name:     "replacement_char",
			Category: CategoryEncoding,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("%d replacement characters", replacement),
		})
	}
	if mojibake > 0 {
		metrics = append(metrics, Metric{
			Name:     "mojibake",
			Category: CategoryEncoding,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("%d mojibake sequences", mojibake),
		})
	}
	if control > 0 {
		metrics = append(metrics, Metric{
			Name:     "control_chars",
			Category: CategoryEncoding,
			Column:   rc.TextColumn,
			Flag:     true,
			Message:  fmt.Sprintf("%d control characters", control),
		})
	}
	return metrics, nil
}

// --- Token statistics ---

// TokenStats emits the whitespace token count of the text column as a value
// metric. The engine folds it into the token-length quantile sketch; the
// outlier analyzer applies the bounds.
type TokenStats struct{}

func (TokenStats) Name() string         { return "token_stats" }
func (TokenStats) Tier() CostTier       { return TierCheap }
func (TokenStats) Requires() Capability { return CapabilityNone }
func (TokenStats) Category() Category   { return CategoryOutliers }

func (TokenStats) Evaluate(rc *Context, row *model.Row) ([]Metric, error) {
	text, ok := rc.Text(row)
	if !ok {
		return nil, nil
	}
	return []Metric{{
		Name:     MetricTokenCount,
		Category: CategoryOutliers,
		Column:   rc.TextColumn,
		Value:    float64(CountTokens(text)),
	}}, nil
}

// MetricTokenCount names the token-count value metric the engine folds into
// its quantile sketch.
const MetricTokenCount = "token_count"

// CountTokens counts whitespace-separated tokens without allocating.
func CountTokens(text []byte) int {
	n := 0
	inToken := false
	for _, r := range string(text) {
		if unicode.IsSpace(r) {
			inToken = false
			continue
		}
		if !inToken {
			n++
			inToken = true
		}
	}
	return n
}
