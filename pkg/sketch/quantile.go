package sketch

import (
	"math"
	"sort"
)

// QuantileSketch estimates quantiles of a non-negative value stream using
// logarithmically sized buckets, guaranteeing a configurable relative error
// on reported values. Bucket counts are plain integers, so Merge is exact
// bucket addition: associative, commutative, and independent of row order.
//
// Memory is bounded by MaxBuckets. When the bound is hit, the lowest buckets
// are collapsed into one; the sketch records that it degraded so the caller
// can surface the widened error bound instead of failing.
type QuantileSketch struct {
	gamma    float64 // bucket growth factor, derived from epsilon
	lnGamma  float64
	eps      float64
	buckets  map[int]uint64
	zeros    uint64 // values in [0, 1) get their own bucket
	count    uint64
	min, max float64

	maxBuckets int
	collapsed  bool
}

// DefaultQuantileEpsilon is the relative error used when the caller does not
// configure one.
const DefaultQuantileEpsilon = 0.01

// DefaultMaxBuckets bounds sketch memory independent of dataset size.
const DefaultMaxBuckets = 2048

// NewQuantileSketch creates a sketch with the given relative error bound.
// Epsilon outside (0, 1) falls back to the default.
func NewQuantileSketch(epsilon float64) *QuantileSketch {
	if epsilon <= 0 || epsilon >= 1 {
		epsilon = DefaultQuantileEpsilon
	}
	gamma := (1 + epsilon) / (1 - epsilon)
	return &QuantileSketch{
		gamma:      gamma,
		lnGamma:    math.Log(gamma),
		eps:        epsilon,
		buckets:    make(map[int]uint64),
		min:        math.Inf(1),
		max:        math.Inf(-1),
		maxBuckets: DefaultMaxBuckets,
	}
}

// Epsilon returns the configured relative error bound.
func (q *QuantileSketch) Epsilon() float64 { return q.eps }

// Count returns the number of values observed.
func (q *QuantileSketch) Count() uint64 { return q.count }

// Collapsed reports whether the sketch hit its memory bound and degraded.
func (q *QuantileSketch) Collapsed() bool { return q.collapsed }

// Min returns the smallest observed value, or 0 when empty.
func (q *QuantileSketch) Min() float64 {
	if q.count == 0 {
		return 0
	}
	return q.min
}

// Max returns the largest observed value, or 0 when empty.
func (q *QuantileSketch) Max() float64 {
	if q.count == 0 {
		return 0
	}
	return q.max
}

// Update feeds one value. Negative values are clamped to zero; the sketch
// targets counts and lengths, which are never negative.
func (q *QuantileSketch) Update(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	q.count++
	if v < q.min {
		q.min = v
	}
	if v > q.max {
		q.max = v
	}

	if v < 1 {
		q.zeros++
		return
	}

	key := q.key(v)
	q.buckets[key]++
	if len(q.buckets) > q.maxBuckets {
		q.collapse()
	}
}

// key maps a value >= 1 to its bucket index.
func (q *QuantileSketch) key(v float64) int {
	return int(math.Ceil(math.Log(v) / q.lnGamma))
}

// value maps a bucket index back to the bucket's representative value.
func (q *QuantileSketch) value(key int) float64 {
	// Midpoint of the bucket range [gamma^(k-1), gamma^k].
	return 2 * math.Pow(q.gamma, float64(key)) / (1 + q.gamma)
}

// collapse folds the lowest buckets together until the bound holds again.
// Low buckets hold the smallest values, where absolute error matters least
// for outlier detection at the high percentiles.
func (q *QuantileSketch) collapse() {
	keys := q.sortedKeys()
	for len(keys) > 1 && len(q.buckets) > q.maxBuckets {
		lowest, next := keys[0], keys[1]
		q.buckets[next] += q.buckets[lowest]
		delete(q.buckets, lowest)
		keys = keys[1:]
	}
	q.collapsed = true
}

func (q *QuantileSketch) sortedKeys() []int {
	keys := make([]int, 0, len(q.buckets))
	for k := range q.buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Merge folds another sketch into this one. Both sketches must share the
// same epsilon; mixing resolutions would void the error bound.
func (q *QuantileSketch) Merge(other *QuantileSketch) {
	if other == nil || other.count == 0 {
		return
	}
	for k, c := range other.buckets {
		q.buckets[k] += c
	}
	q.zeros += other.zeros
	q.count += other.count
	if other.min < q.min {
		q.min = other.min
	}
	if other.max > q.max {
		q.max = other.max
	}
	if other.collapsed {
		q.collapsed = true
	}
	if len(q.buckets) > q.maxBuckets {
		q.collapse()
	}
}

// CountBelow returns how many observed values fall in buckets strictly
// below v's bucket. Values sharing v's bucket cannot be split within the
// sketch's resolution and are not counted.
func (q *QuantileSketch) CountBelow(v float64) uint64 {
	if q.count == 0 || v < 1 {
		// The sub-one bucket is indivisible, so nothing is provably below.
		return 0
	}
	n := q.zeros
	kv := q.key(v)
	for k, c := range q.buckets {
		if k < kv {
			n += c
		}
	}
	return n
}

// CountAbove returns how many observed values fall in buckets strictly
// above v's bucket.
func (q *QuantileSketch) CountAbove(v float64) uint64 {
	if q.count == 0 {
		return 0
	}
	if v < 1 {
		return q.count - q.zeros
	}
	var n uint64
	kv := q.key(v)
	for k, c := range q.buckets {
		if k > kv {
			n += c
		}
	}
	return n
}

// Quantile returns the estimated value at rank fraction p in [0, 1].
// Returns 0 for an empty sketch.
func (q *QuantileSketch) Quantile(p float64) float64 {
	if q.count == 0 {
		return 0
	}
	if p <= 0 {
		return q.Min()
	}
	if p >= 1 {
		return q.Max()
	}

	target := uint64(math.Ceil(p * float64(q.count)))
	if target <= q.zeros {
		return 0
	}
	seen := q.zeros
	for _, k := range q.sortedKeys() {
		seen += q.buckets[k]
		if seen >= target {
			return q.value(k)
		}
	}
	return q.Max()
}
