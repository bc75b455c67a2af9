package cache

import "testing"

func TestRequestKeyDeterministic(t *testing.T) {
	type cfg struct {
		Threshold float64 `json:"threshold"`
		Analyzers []string
	}
	a, err := RequestKey("s3://bucket/data.csv", cfg{0.8, []string{"noise", "encoding"}})
	if err != nil {
		t.Fatal(err)
	}
	b, err := RequestKey("s3://bucket/data.csv", cfg{0.8, []string{"noise", "encoding"}})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("equal requests must hash equally")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha-256 hex key, got %q", a)
	}
}

func TestRequestKeySensitivity(t *testing.T) {
	base, _ := RequestKey("data.csv", map[string]int{"min": 5})
	otherData, _ := RequestKey("other.csv", map[string]int{"min": 5})
	otherCfg, _ := RequestKey("data.csv", map[string]int{"min": 6})

	if base == otherData {
		t.Fatal("different datasets must hash differently")
	}
	if base == otherCfg {
		t.Fatal("different configs must hash differently")
	}
}
