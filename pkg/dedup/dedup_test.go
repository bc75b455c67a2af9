package dedup

import (
	"fmt"
	"testing"
)

func TestExactIndexBasic(t *testing.T) {
	idx := NewExactIndex()

	if idx.Observe(0, []byte("hello world")) {
		t.Fatal("first occurrence must not be a duplicate")
	}
	if idx.Observe(1, []byte("different text")) {
		t.Fatal("distinct text must not be a duplicate")
	}
	if !idx.Observe(2, []byte("hello world")) {
		t.Fatal("second occurrence must be a duplicate")
	}

	dupes := idx.Duplicates()
	if canonical, ok := dupes[2]; !ok || canonical != 0 {
		t.Fatalf("row 2 should duplicate row 0, got %v", dupes)
	}
	if idx.DuplicateCount() != 1 || idx.DistinctCount() != 2 {
		t.Fatalf("counts: dupes=%d distinct=%d", idx.DuplicateCount(), idx.DistinctCount())
	}
}

func TestExactIndexNoFalseNegatives(t *testing.T) {
	// Every planted duplicate must be found, gated or not.
	for _, gated := range []bool{false, true} {
		var idx *ExactIndex
		if gated {
			idx = NewGatedExactIndex(10000, 0.01)
		} else {
			idx = NewExactIndex()
		}
		for i := int64(0); i < 1000; i++ {
			idx.Observe(i, []byte(fmt.Sprintf("row-%d", i)))
		}
		for i := int64(1000); i < 1100; i++ {
			if !idx.Observe(i, []byte(fmt.Sprintf("row-%d", i-1000))) {
				t.Fatalf("gated=%v: duplicate at row %d not detected", gated, i)
			}
		}
		if got := idx.DuplicateCount(); got != 100 {
			t.Fatalf("gated=%v: expected 100 duplicates, got %d", gated, got)
		}
	}
}

func TestGatedExactIndexBoundsTable(t *testing.T) {
	// The exact table of a gated index holds promoted (duplicated) content
	// only; unique rows live in the Bloom filter alone.
	idx := NewGatedExactIndex(10000, 0.01)
	for i := int64(0); i < 1000; i++ {
		idx.Observe(i, []byte(fmt.Sprintf("unique-%d", i)))
	}
	for i := int64(0); i < 5; i++ {
		idx.Observe(1000+i, []byte(fmt.Sprintf("unique-%d", i)))
	}

	if got := len(idx.first); got != 5 {
		t.Fatalf("exact table holds %d entries, want 5 promoted hashes", got)
	}
	if got := idx.DuplicateCount(); got != 5 {
		t.Fatalf("DuplicateCount = %d, want 5", got)
	}
	if got := idx.DistinctCount(); got != 1000 {
		t.Fatalf("DistinctCount = %d, want 1000", got)
	}
}

func TestExactIndexMergeLowestIndexWins(t *testing.T) {
	// Shard B sees the content first by arrival but holds the higher row
	// index; after merge the winner must be the lowest global index.
	a := NewExactIndex()
	b := NewExactIndex()

	b.Observe(7, []byte("shared content"))
	b.Observe(9, []byte("shared content"))
	a.Observe(3, []byte("shared content"))
	a.Observe(5, []byte("only in a"))

	a.Merge(b)

	dupes := a.Duplicates()
	if len(dupes) != 2 {
		t.Fatalf("expected 2 duplicates after merge, got %v", dupes)
	}
	for _, idx := range []int64{7, 9} {
		if canonical, ok := dupes[idx]; !ok || canonical != 3 {
			t.Fatalf("row %d should duplicate row 3, got %v", idx, dupes)
		}
	}
	if a.Rows() != 4 {
		t.Fatalf("expected 4 rows total, got %d", a.Rows())
	}
}

func TestExactIndexMergeOrderIndependent(t *testing.T) {
	build := func(pairs [][2]interface{}) *ExactIndex {
		idx := NewExactIndex()
		for _, p := range pairs {
			idx.Observe(p[0].(int64), []byte(p[1].(string)))
		}
		return idx
	}
	left := [][2]interface{}{{int64(0), "x"}, {int64(2), "y"}}
	right := [][2]interface{}{{int64(1), "x"}, {int64(3), "y"}}

	ab := build(left)
	ab.Merge(build(right))
	ba := build(right)
	ba.Merge(build(left))

	da, db := ab.Duplicates(), ba.Duplicates()
	if len(da) != len(db) {
		t.Fatalf("merge order changed duplicate set: %v vs %v", da, db)
	}
	for idx, canonical := range da {
		if db[idx] != canonical {
			t.Fatalf("merge order changed winner for row %d: %d vs %d", idx, canonical, db[idx])
		}
	}
}

func TestNearIndexClusters(t *testing.T) {
	idx := NewNearIndex(0.95, 0)

	idx.Observe(0, []float32{1, 0, 0})
	idx.Observe(1, []float32{0.99, 0.01, 0}) // near row 0
	idx.Observe(2, []float32{0, 1, 0})       // distinct
	idx.Observe(3, []float32{1, 0.005, 0})   // near row 0

	clusters := idx.Clusters()
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %v", clusters)
	}
	c := clusters[0]
	if c.Representative != 0 || len(c.Members) != 3 {
		t.Fatalf("expected cluster of rows {0,1,3} led by 0, got %+v", c)
	}
	if idx.NearDuplicateCount() != 2 {
		t.Fatalf("expected 2 near duplicates, got %d", idx.NearDuplicateCount())
	}
}

func TestNearIndexMergeRepresentativeIsLowest(t *testing.T) {
	a := NewNearIndex(0.95, 0)
	b := NewNearIndex(0.95, 0)

	b.Observe(10, []float32{1, 0})
	a.Observe(4, []float32{0.999, 0.001})

	a.Merge(b)
	clusters := a.Clusters()
	if len(clusters) != 1 || clusters[0].Representative != 4 {
		t.Fatalf("representative must be lowest index across shards, got %+v", clusters)
	}
}

func TestNearIndexCapacity(t *testing.T) {
	idx := NewNearIndex(0.95, 2)
	idx.Observe(0, []float32{1, 0})
	idx.Observe(1, []float32{0, 1})
	idx.Observe(2, []float32{1, 1})
	if idx.Truncated() != 1 {
		t.Fatalf("expected 1 truncated vector, got %d", idx.Truncated())
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 0}, []float32{1, 0, 0}, 0}, // length mismatch
		{[]float32{0, 0}, []float32{1, 0}, 0},    // zero vector
	}
	for _, tc := range tests {
		got := CosineSimilarity(tc.a, tc.b)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("CosineSimilarity(%v, %v) = %f, want %f", tc.a, tc.b, got, tc.want)
		}
	}
}
