package sketch

import (
	"fmt"
	"math"
	"testing"
)

func TestQuantileSketch_Basic(t *testing.T) {
	q := NewQuantileSketch(0.01)
	for i := 1; i <= 1000; i++ {
		q.Update(float64(i))
	}

	tests := []struct {
		p    float64
		want float64
	}{
		{0.5, 500},
		{0.9, 900},
		{0.99, 990},
	}

	for _, tt := range tests {
		got := q.Quantile(tt.p)
		relErr := math.Abs(got-tt.want) / tt.want
		if relErr > 0.03 {
			t.Errorf("Quantile(%v) = %v, want ~%v (rel err %.4f)", tt.p, got, tt.want, relErr)
		}
	}

	if q.Min() != 1 || q.Max() != 1000 {
		t.Errorf("Min/Max = %v/%v, want 1/1000", q.Min(), q.Max())
	}
}

func TestQuantileSketch_Empty(t *testing.T) {
	q := NewQuantileSketch(0.01)
	if q.Quantile(0.5) != 0 {
		t.Error("empty sketch should report 0")
	}
	if q.Count() != 0 {
		t.Error("empty sketch should have count 0")
	}
}

func TestQuantileSketch_RankCounts(t *testing.T) {
	q := NewQuantileSketch(0.01)
	for i := 0; i < 200; i++ {
		q.Update(10)
	}
	q.Update(5000)

	if got := q.CountAbove(q.Quantile(0.99)); got != 1 {
		t.Errorf("CountAbove(p99) = %d, want 1", got)
	}
	if got := q.CountBelow(q.Quantile(0.01)); got != 0 {
		t.Errorf("CountBelow(p01) = %d, want 0", got)
	}
	if got := q.CountAbove(0); got != q.Count() {
		t.Errorf("CountAbove(0) = %d, want full count %d", got, q.Count())
	}
	if got := q.CountBelow(0.5); got != 0 {
		t.Errorf("CountBelow in the sub-one bucket = %d, want 0", got)
	}

	// Rank counts survive merging the same way quantiles do.
	a, b := NewQuantileSketch(0.01), NewQuantileSketch(0.01)
	for i := 0; i < 100; i++ {
		a.Update(10)
		b.Update(10)
	}
	b.Update(5000)
	a.Merge(b)
	if got := a.CountAbove(a.Quantile(0.99)); got != 1 {
		t.Errorf("merged CountAbove(p99) = %d, want 1", got)
	}
}

func TestQuantileSketch_MergeEqualsSequential(t *testing.T) {
	// Sharded merge must produce the same finalized output as a single pass.
	seq := NewQuantileSketch(0.01)
	shards := []*QuantileSketch{
		NewQuantileSketch(0.01),
		NewQuantileSketch(0.01),
		NewQuantileSketch(0.01),
	}

	for i := 0; i < 3000; i++ {
		v := float64(i%997) + 1
		seq.Update(v)
		shards[i%3].Update(v)
	}

	merged := NewQuantileSketch(0.01)
	merged.Merge(shards[0])
	merged.Merge(shards[1])
	merged.Merge(shards[2])

	for _, p := range []float64{0.01, 0.25, 0.5, 0.75, 0.99} {
		if got, want := merged.Quantile(p), seq.Quantile(p); got != want {
			t.Errorf("Quantile(%v): merged %v != sequential %v", p, got, want)
		}
	}
	if merged.Count() != seq.Count() {
		t.Errorf("Count: merged %d != sequential %d", merged.Count(), seq.Count())
	}
}

func TestQuantileSketch_MergeAssociative(t *testing.T) {
	build := func(lo, hi int) *QuantileSketch {
		q := NewQuantileSketch(0.01)
		for i := lo; i < hi; i++ {
			q.Update(float64(i))
		}
		return q
	}

	// merge(a, merge(b, c))
	left := build(0, 100)
	bc := build(100, 200)
	bc.Merge(build(200, 300))
	left.Merge(bc)

	// merge(merge(a, b), c)
	right := build(0, 100)
	right.Merge(build(100, 200))
	right.Merge(build(200, 300))

	for _, p := range []float64{0.1, 0.5, 0.9} {
		if left.Quantile(p) != right.Quantile(p) {
			t.Errorf("associativity violated at p=%v: %v != %v", p, left.Quantile(p), right.Quantile(p))
		}
	}
}

func TestHyperLogLog_Accuracy(t *testing.T) {
	h := NewHyperLogLog(14)
	const n = 100000
	for i := 0; i < n; i++ {
		h.Add([]byte(fmt.Sprintf("value-%d", i)))
	}

	got := float64(h.Count())
	relErr := math.Abs(got-n) / n
	if relErr > 0.05 {
		t.Errorf("Count() = %v, want ~%v (rel err %.4f)", got, n, relErr)
	}
}

func TestHyperLogLog_MergeEqualsUnion(t *testing.T) {
	a := NewHyperLogLog(14)
	b := NewHyperLogLog(14)
	union := NewHyperLogLog(14)

	for i := 0; i < 5000; i++ {
		v := []byte(fmt.Sprintf("a-%d", i))
		a.Add(v)
		union.Add(v)
	}
	for i := 0; i < 5000; i++ {
		v := []byte(fmt.Sprintf("b-%d", i))
		b.Add(v)
		union.Add(v)
	}

	a.Merge(b)
	if a.Count() != union.Count() {
		t.Errorf("merged count %d != union count %d", a.Count(), union.Count())
	}
}

func TestBloomFilter_NoFalseNegatives(t *testing.T) {
	b := NewBloomFilter(10000, 0.01)
	for i := 0; i < 10000; i++ {
		b.Add([]byte(fmt.Sprintf("item-%d", i)))
	}
	for i := 0; i < 10000; i++ {
		if !b.Contains([]byte(fmt.Sprintf("item-%d", i))) {
			t.Fatalf("false negative for item-%d", i)
		}
	}
}

func TestBloomFilter_FalsePositiveRate(t *testing.T) {
	b := NewBloomFilter(10000, 0.01)
	for i := 0; i < 10000; i++ {
		b.Add([]byte(fmt.Sprintf("item-%d", i)))
	}

	fp := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if b.Contains([]byte(fmt.Sprintf("absent-%d", i))) {
			fp++
		}
	}

	rate := float64(fp) / probes
	if rate > 0.03 {
		t.Errorf("false positive rate %.4f exceeds 3x the 0.01 budget", rate)
	}
}

func TestBloomFilter_Merge(t *testing.T) {
	a := NewBloomFilter(1000, 0.01)
	b := NewBloomFilter(1000, 0.01)
	a.Add([]byte("only-in-a"))
	b.Add([]byte("only-in-b"))

	a.Merge(b)
	if !a.Contains([]byte("only-in-a")) || !a.Contains([]byte("only-in-b")) {
		t.Error("merged filter must contain items from both sides")
	}
}

func TestDistinctCounter_ExactThenSpill(t *testing.T) {
	d := NewDistinctCounter(100)

	for i := 0; i < 50; i++ {
		d.Add([]byte(fmt.Sprintf("v-%d", i)))
	}
	if d.Approximate() {
		t.Error("should still be exact below the limit")
	}
	if d.Count() != 50 {
		t.Errorf("exact count = %d, want 50", d.Count())
	}
	if d.ErrorBound() != 0 {
		t.Error("exact mode should report zero error bound")
	}

	for i := 50; i < 500; i++ {
		d.Add([]byte(fmt.Sprintf("v-%d", i)))
	}
	if !d.Approximate() {
		t.Error("should have spilled past the limit")
	}
	got := float64(d.Count())
	if math.Abs(got-500)/500 > 0.1 {
		t.Errorf("approximate count = %v, want ~500", got)
	}
	if d.ErrorBound() == 0 {
		t.Error("approximate mode should report a non-zero error bound")
	}
}

func TestDistinctCounter_MergeExact(t *testing.T) {
	a := NewDistinctCounter(1000)
	b := NewDistinctCounter(1000)
	for i := 0; i < 100; i++ {
		a.Add([]byte(fmt.Sprintf("v-%d", i)))
		b.Add([]byte(fmt.Sprintf("v-%d", i+50))) // 50 overlap
	}

	a.Merge(b)
	if a.Approximate() {
		t.Error("merge of small exact counters should stay exact")
	}
	if a.Count() != 150 {
		t.Errorf("merged count = %d, want 150", a.Count())
	}
}

func TestColumnCounter_Merge(t *testing.T) {
	a := NewColumnCounter(1000)
	b := NewColumnCounter(1000)

	a.Observe([]byte("apple"))
	a.ObserveNull()
	b.Observe([]byte("zebra"))
	b.Observe([]byte("apple"))

	a.Merge(b)

	if a.Rows != 4 {
		t.Errorf("Rows = %d, want 4", a.Rows)
	}
	if a.Nulls != 1 {
		t.Errorf("Nulls = %d, want 1", a.Nulls)
	}
	if a.Distinct() != 2 {
		t.Errorf("Distinct = %d, want 2", a.Distinct())
	}
	if a.MinValue() != "apple" || a.MaxValue() != "zebra" {
		t.Errorf("Min/Max = %q/%q, want apple/zebra", a.MinValue(), a.MaxValue())
	}
	if got := a.NullRatio(); got != 0.25 {
		t.Errorf("NullRatio = %v, want 0.25", got)
	}
}

func TestEntropyCounter_UniformVsConstant(t *testing.T) {
	uniform := NewEntropyCounter(1000)
	constant := NewEntropyCounter(1000)
	for i := 0; i < 256; i++ {
		uniform.Add([]byte(fmt.Sprintf("v-%d", i)))
		constant.Add([]byte("same"))
	}

	if got := uniform.Entropy(); math.Abs(got-8) > 0.01 {
		t.Errorf("uniform entropy = %v, want 8 bits", got)
	}
	if got := constant.Entropy(); got != 0 {
		t.Errorf("constant entropy = %v, want 0", got)
	}
}
