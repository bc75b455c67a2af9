package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/datagrade/datagrade/internal/model"
	dgerrors "github.com/datagrade/datagrade/pkg/errors"
	"github.com/datagrade/datagrade/pkg/schema"
)

func textRow(index int64, text string) *model.Row {
	return &model.Row{
		Index:   index,
		Columns: []string{"text"},
		Values:  [][]byte{[]byte(text)},
	}
}

func testContext() *Context {
	return &Context{
		Ctx:        context.Background(),
		TextColumn: "text",
		Models:     NewModelRegistry(),
		Opts:       Options{}.Normalize(),
	}
}

func flagNames(metrics []Metric) []string {
	var names []string
	for _, m := range metrics {
		if m.Flag {
			names = append(names, m.Name)
		}
	}
	return names
}

func TestNullCheck(t *testing.T) {
	rc := testContext()
	row := &model.Row{
		Index:   0,
		Columns: []string{"a", "b", "c", "d"},
		Values:  [][]byte{[]byte("x"), []byte("NULL"), []byte(""), []byte("N/A")},
	}
	metrics, err := NullCheck{}.Evaluate(rc, row)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 || metrics[0].Name != "excessive_nulls" {
		t.Fatalf("expected excessive_nulls flag, got %+v", metrics)
	}

	clean := &model.Row{
		Columns: []string{"a", "b", "c", "d"},
		Values:  [][]byte{[]byte("1"), []byte("2"), []byte("3"), []byte("")},
	}
	metrics, _ = NullCheck{}.Evaluate(rc, clean)
	if len(metrics) != 0 {
		t.Fatalf("25%% nulls should not flag at default threshold, got %+v", metrics)
	}
}

func TestSchemaDrift(t *testing.T) {
	rc := testContext()
	rc.Schema = &schema.Schema{Columns: []schema.Column{
		{Name: "id", Type: schema.TypeInt},
		{Name: "score", Type: schema.TypeFloat},
	}}
	row := &model.Row{
		Columns: []string{"id", "score"},
		Values:  [][]byte{[]byte("abc"), []byte("0.5")},
	}
	metrics, err := SchemaDrift{}.Evaluate(rc, row)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 || metrics[0].Column != "id" {
		t.Fatalf("expected one mismatch on id, got %+v", metrics)
	}
}

func TestTimestampCheck(t *testing.T) {
	rc := testContext()
	rc.Schema = &schema.Schema{Columns: []schema.Column{
		{Name: "ts", Type: schema.TypeTimestamp},
	}}
	for _, tc := range []struct {
		value string
		want  int
	}{
		{"2025-01-15T10:30:00Z", 0},
		{"2025-01-15 10:30:00", 0},
		{"not a time", 1},
	} {
		row := &model.Row{Columns: []string{"ts"}, Values: [][]byte{[]byte(tc.value)}}
		metrics, err := TimestampCheck{}.Evaluate(rc, row)
		if err != nil {
			t.Fatal(err)
		}
		if len(metrics) != tc.want {
			t.Errorf("%q: got %d findings, want %d", tc.value, len(metrics), tc.want)
		}
	}
}

func TestEncoding(t *testing.T) {
	rc := testContext()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"clean", "perfectly normal text", ""},
		{"replacement", "broken � here", "replacement_char"},
		{"mojibake", "cafÃ© au lait", "mojibake"},
		{"mojibake latin1", "naÃ¯ve rÃ©sumÃ©", "mojibake"},
		{"control", "null\x00byte", "control_chars"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics, err := Encoding{}.Evaluate(rc, textRow(0, tc.text))
			if err != nil {
				t.Fatal(err)
			}
			names := flagNames(metrics)
			if tc.want == "" {
				if len(names) != 0 {
					t.Fatalf("expected no flags, got %v", names)
				}
				return
			}
			found := false
			for _, n := range names {
				if n == tc.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s flag, got %v", tc.want, names)
			}
		})
	}

	metrics, err := Encoding{}.Evaluate(rc, textRow(0, string([]byte{0xFF, 0xFE, 'a'})))
	if err != nil {
		t.Fatal(err)
	}
	if names := flagNames(metrics); len(names) != 1 || names[0] != "invalid_utf8" {
		t.Fatalf("expected invalid_utf8, got %v", names)
	}
}

func TestCountTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two three", 3},
		{"  spaced   out\ttabs\nnewlines  ", 4},
	}
	for _, tc := range tests {
		if got := CountTokens([]byte(tc.text)); got != tc.want {
			t.Errorf("CountTokens(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestOutliers(t *testing.T) {
	rc := testContext()

	metrics, _ := Outliers{}.Evaluate(rc, textRow(0, "too short"))
	if names := flagNames(metrics); len(names) != 1 || names[0] != "too_short" {
		t.Fatalf("expected too_short, got %v", names)
	}

	long := strings.Repeat("word ", 10001)
	metrics, _ = Outliers{}.Evaluate(rc, textRow(1, long))
	if names := flagNames(metrics); len(names) != 1 || names[0] != "too_long" {
		t.Fatalf("expected too_long, got %v", names)
	}

	ok := strings.Repeat("word ", 100)
	metrics, _ = Outliers{}.Evaluate(rc, textRow(2, ok))
	if len(metrics) != 0 {
		t.Fatalf("expected no flags for in-range length, got %+v", metrics)
	}
}

func TestNoise(t *testing.T) {
	rc := testContext()
	tests := []struct {
		name string
		text string
		want string
	}{
		{"clean", "This is a perfectly ordinary sentence about the weather today.", ""},
		{"non_alpha", "@#$% ^&*() 12345 !!!! ????", "non_alpha"},
		{"repetition", "the word spam spam spam spam spam is repeated here", "repetition"},
		{"html", "click <a href=\"x\">here</a> to continue reading the article", "html_markup"},
		{"log", "request served at 2025-01-15 10:30:00 with status ok", "log_content"},
		{"code", "def main(): return compute(args)", "code_content"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			metrics, err := Noise{}.Evaluate(rc, textRow(0, tc.text))
			if err != nil {
				t.Fatal(err)
			}
			names := flagNames(metrics)
			if tc.want == "" {
				if len(names) != 0 {
					t.Fatalf("expected clean, got %v", names)
				}
				return
			}
			found := false
			for _, n := range names {
				if n == tc.want {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %s, got %v", tc.want, names)
			}
		})
	}
}

func TestLongestTokenRunBelowThreshold(t *testing.T) {
	rc := testContext()
	metrics, _ := Noise{}.Evaluate(rc, textRow(0, "really really really really good but not spammy text"))
	for _, n := range flagNames(metrics) {
		if n == "repetition" {
			t.Fatal("run of 4 should not flag at default threshold 5")
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"the cat sat on the mat and it was happy that day", "en"},
		{"el perro corre por la calle y no se detiene para nada", "es"},
		{"der Hund läuft durch die Stadt und ist nicht müde", "de"},
		{"xyzzy plugh", ""},
	}
	for _, tc := range tests {
		code, _ := DetectLanguage([]byte(tc.text))
		if code != tc.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tc.text, code, tc.want)
		}
	}
}

func TestLanguageMismatch(t *testing.T) {
	rc := testContext()
	rc.Opts.DeclaredLanguage = "en"
	metrics, err := LanguageCheck{}.Evaluate(rc, textRow(0, "el perro corre por la calle y no se detiene para nada"))
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range flagNames(metrics) {
		if n == "language_mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected language_mismatch, got %+v", metrics)
	}
}

type fixedScorer struct {
	score float64
	err   error
}

func (f fixedScorer) Predict(context.Context, []byte) (float64, error) { return f.score, f.err }

func TestToxicityThreshold(t *testing.T) {
	rc := testContext()
	rc.Models.RegisterScorer(ModelToxicity, fixedScorer{score: 0.9})
	tox := NewToxicity()

	metrics, err := tox.Evaluate(rc, textRow(0, "some text"))
	if err != nil {
		t.Fatal(err)
	}
	if names := flagNames(metrics); len(names) != 1 || names[0] != "toxic_content" {
		t.Fatalf("score 0.9 at threshold 0.8 should flag, got %v", names)
	}

	rc.Models.RegisterScorer(ModelToxicity, fixedScorer{score: 0.2})
	metrics, _ = tox.Evaluate(rc, textRow(1, "some text"))
	if len(flagNames(metrics)) != 0 {
		t.Fatal("score 0.2 should not flag")
	}
}

func TestFluencyFlagsLowScores(t *testing.T) {
	rc := testContext()
	rc.Models.RegisterScorer(ModelFluency, fixedScorer{score: 0.1})
	metrics, err := NewFluency().Evaluate(rc, textRow(0, "gibberish"))
	if err != nil {
		t.Fatal(err)
	}
	if names := flagNames(metrics); len(names) != 1 || names[0] != "low_fluency" {
		t.Fatalf("expected low_fluency, got %v", names)
	}
}

func TestHeavyMissingModel(t *testing.T) {
	rc := testContext()
	_, err := NewToxicity().Evaluate(rc, textRow(0, "text"))
	if !dgerrors.IsCode(err, dgerrors.CodeCapabilityUnavailable) {
		t.Fatalf("expected capability error, got %v", err)
	}
}

func TestHeavyModelError(t *testing.T) {
	rc := testContext()
	rc.Models.RegisterScorer(ModelToxicity, fixedScorer{err: errors.New("backend down")})
	_, err := NewToxicity().Evaluate(rc, textRow(0, "text"))
	if !dgerrors.IsCode(err, dgerrors.CodeAnalyzerFailure) {
		t.Fatalf("expected analyzer failure, got %v", err)
	}
}

type panicAnalyzer struct{}

func (panicAnalyzer) Name() string         { return "panicky" }
func (panicAnalyzer) Tier() CostTier       { return TierCheap }
func (panicAnalyzer) Requires() Capability { return CapabilityNone }
func (panicAnalyzer) Category() Category   { return CategoryNoise }
func (panicAnalyzer) Evaluate(*Context, *model.Row) ([]Metric, error) {
	panic("boom")
}

func TestEvaluateSafeRecoversPanic(t *testing.T) {
	rc := testContext()
	metrics, err := EvaluateSafe(panicAnalyzer{}, rc, textRow(7, "text"))
	if metrics != nil {
		t.Fatal("panicking analyzer must not return metrics")
	}
	if !dgerrors.IsCode(err, dgerrors.CodePanic) {
		t.Fatalf("expected panic error code, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	r := NewRun(NullCheck{}, 3)
	if r.Status() != StatusPending {
		t.Fatal("new run must be pending")
	}
	r.Start()
	if r.Status() != StatusRunning {
		t.Fatal("Start must move pending to running")
	}
	if r.Skip("too late") {
		t.Fatal("running analyzer must not be skippable")
	}
	r.Complete()
	if r.Status() != StatusCompleted {
		t.Fatal("Complete must move running to completed")
	}
}

func TestRunSkipOnlyFromPending(t *testing.T) {
	r := NewRun(NewToxicity(), 0)
	if !r.Skip("model unavailable") {
		t.Fatal("pending analyzer must be skippable")
	}
	if r.Status() != StatusSkipped || r.Reason() != "model unavailable" {
		t.Fatalf("got %v / %q", r.Status(), r.Reason())
	}
	r.Start()
	if r.Status() != StatusSkipped {
		t.Fatal("Start must not resurrect a skipped run")
	}
}

func TestRunDemotionThreshold(t *testing.T) {
	r := NewRun(NullCheck{}, 3)
	r.Start()
	err := errors.New("row error")

	if r.RecordError(err) {
		t.Fatal("first error must not demote")
	}
	r.RecordSuccess()
	if r.RecordError(err) || r.RecordError(err) {
		t.Fatal("streak reset by success must not demote at 2")
	}
	if !r.RecordError(err) {
		t.Fatal("third consecutive error must demote")
	}
	if r.Status() != StatusFailed {
		t.Fatalf("expected failed, got %v", r.Status())
	}
	if r.ErrorRows() != 4 {
		t.Fatalf("expected 4 error rows counted, got %d", r.ErrorRows())
	}
}

func TestBuiltinsUniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, a := range Builtins() {
		if seen[a.Name()] {
			t.Fatalf("duplicate analyzer name %s", a.Name())
		}
		seen[a.Name()] = true
	}
	if _, ok := ByName("noise"); !ok {
		t.Fatal("ByName must resolve built-in analyzers")
	}
}
