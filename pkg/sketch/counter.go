package sketch

import "math"

// DefaultExactDistinctLimit is the cardinality at which a DistinctCounter
// spills from exact counting to the HyperLogLog estimate.
const DefaultExactDistinctLimit = 65536

// DistinctCounter counts distinct values exactly while cardinality is small
// and degrades to a HyperLogLog estimate once the exact set exceeds its
// configured limit. The degradation is recorded, not silent: Approximate
// reports which mode produced the final count.
type DistinctCounter struct {
	limit  int
	exact  map[uint64]struct{}
	hll    *HyperLogLog
	approx bool
}

// NewDistinctCounter creates a counter that stays exact up to limit values.
func NewDistinctCounter(limit int) *DistinctCounter {
	if limit <= 0 {
		limit = DefaultExactDistinctLimit
	}
	return &DistinctCounter{
		limit: limit,
		exact: make(map[uint64]struct{}),
		hll:   NewHyperLogLog(DefaultHLLPrecision),
	}
}

// Add observes one value.
func (d *DistinctCounter) Add(value []byte) {
	// The HLL always runs so the spill loses nothing already seen.
	d.hll.Add(value)
	if d.approx {
		return
	}
	d.exact[hash64(value)] = struct{}{}
	if len(d.exact) > d.limit {
		d.spill()
	}
}

func (d *DistinctCounter) spill() {
	d.approx = true
	d.exact = nil
}

// Merge folds another counter into this one.
func (d *DistinctCounter) Merge(other *DistinctCounter) {
	if other == nil {
		return
	}
	d.hll.Merge(other.hll)
	if d.approx || other.approx {
		if !d.approx {
			d.spill()
		}
		return
	}
	for h := range other.exact {
		d.exact[h] = struct{}{}
	}
	if len(d.exact) > d.limit {
		d.spill()
	}
}

// Count returns the distinct value count, exact or estimated.
func (d *DistinctCounter) Count() uint64 {
	if d.approx {
		return d.hll.Count()
	}
	return uint64(len(d.exact))
}

// Approximate reports whether the count is an HLL estimate.
func (d *DistinctCounter) Approximate() bool { return d.approx }

// ErrorBound returns the relative error of the current count: zero while
// exact, the HLL standard error after the spill.
func (d *DistinctCounter) ErrorBound() float64 {
	if !d.approx {
		return 0
	}
	return d.hll.StandardError()
}

// ColumnCounter accumulates per-column statistics: null and empty counts,
// type mismatches against the declared schema, lexicographic min/max, and
// distinct cardinality. All fields merge exactly except the distinct count,
// which inherits the DistinctCounter contract.
type ColumnCounter struct {
	Rows         uint64
	Nulls        uint64
	TypeErrors   uint64
	FormatErrors uint64

	minSet   bool
	minValue string
	maxValue string

	distinct *DistinctCounter
	entropy  *EntropyCounter
}

// NewColumnCounter creates a counter with the given exact-distinct limit.
func NewColumnCounter(distinctLimit int) *ColumnCounter {
	return &ColumnCounter{
		distinct: NewDistinctCounter(distinctLimit),
		entropy:  NewEntropyCounter(distinctLimit),
	}
}

// ObserveNull records a missing cell.
func (c *ColumnCounter) ObserveNull() {
	c.Rows++
	c.Nulls++
}

// Observe records a present cell value.
func (c *ColumnCounter) Observe(value []byte) {
	c.Rows++
	c.distinct.Add(value)
	c.entropy.Add(value)

	s := string(value)
	if !c.minSet {
		c.minSet = true
		c.minValue = s
		c.maxValue = s
		return
	}
	if s < c.minValue {
		c.minValue = s
	}
	if s > c.maxValue {
		c.maxValue = s
	}
}

// Merge folds another column counter into this one.
func (c *ColumnCounter) Merge(other *ColumnCounter) {
	if other == nil {
		return
	}
	c.Rows += other.Rows
	c.Nulls += other.Nulls
	c.TypeErrors += other.TypeErrors
	c.FormatErrors += other.FormatErrors
	c.distinct.Merge(other.distinct)
	c.entropy.Merge(other.entropy)

	if other.minSet {
		if !c.minSet {
			c.minSet = true
			c.minValue = other.minValue
			c.maxValue = other.maxValue
		} else {
			if other.minValue < c.minValue {
				c.minValue = other.minValue
			}
			if other.maxValue > c.maxValue {
				c.maxValue = other.maxValue
			}
		}
	}
}

// NullRatio returns the fraction of rows with a missing cell.
func (c *ColumnCounter) NullRatio() float64 {
	if c.Rows == 0 {
		return 0
	}
	return float64(c.Nulls) / float64(c.Rows)
}

// Distinct returns the distinct value count.
func (c *ColumnCounter) Distinct() uint64 { return c.distinct.Count() }

// DistinctApproximate reports whether the distinct count is estimated.
func (c *ColumnCounter) DistinctApproximate() bool { return c.distinct.Approximate() }

// DistinctErrorBound returns the relative error of the distinct count.
func (c *ColumnCounter) DistinctErrorBound() float64 { return c.distinct.ErrorBound() }

// UniquenessRatio returns distinct/non-null rows in [0, 1].
func (c *ColumnCounter) UniquenessRatio() float64 {
	present := c.Rows - c.Nulls
	if present == 0 {
		return 0
	}
	r := float64(c.distinct.Count()) / float64(present)
	if r > 1 {
		r = 1
	}
	return r
}

// Entropy returns the Shannon entropy of the observed values in bits.
func (c *ColumnCounter) Entropy() float64 { return c.entropy.Entropy() }

// EntropyApproximate reports whether the entropy estimate lost precision
// to the frequency-table cap.
func (c *ColumnCounter) EntropyApproximate() bool { return c.entropy.Approximate() }

// MinValue returns the lexicographic minimum, or "" when no value was seen.
func (c *ColumnCounter) MinValue() string { return c.minValue }

// MaxValue returns the lexicographic maximum, or "" when no value was seen.
func (c *ColumnCounter) MaxValue() string { return c.maxValue }

// EntropyCounter computes Shannon entropy over value frequencies. Memory is
// bounded: once the frequency table exceeds its cap the counter freezes new
// keys and attributes further mass to an overflow bucket, recording that the
// result became approximate.
type EntropyCounter struct {
	counts   map[uint64]uint64
	overflow uint64
	total    uint64
	limit    int
	approx   bool
}

// NewEntropyCounter creates a counter with the given frequency-table cap.
func NewEntropyCounter(limit int) *EntropyCounter {
	if limit <= 0 {
		limit = DefaultExactDistinctLimit
	}
	return &EntropyCounter{
		counts: make(map[uint64]uint64),
		limit:  limit,
	}
}

// Add observes one value.
func (e *EntropyCounter) Add(value []byte) {
	e.total++
	h := hash64(value)
	if _, ok := e.counts[h]; !ok && len(e.counts) >= e.limit {
		e.approx = true
		e.overflow++
		return
	}
	e.counts[h]++
}

// Merge folds another entropy counter into this one.
func (e *EntropyCounter) Merge(other *EntropyCounter) {
	if other == nil {
		return
	}
	e.total += other.total
	e.overflow += other.overflow
	if other.approx {
		e.approx = true
	}
	for h, n := range other.counts {
		if _, ok := e.counts[h]; !ok && len(e.counts) >= e.limit {
			e.approx = true
			e.overflow += n
			continue
		}
		e.counts[h] += n
	}
}

// Entropy returns the Shannon entropy in bits.
func (e *EntropyCounter) Entropy() float64 {
	if e.total == 0 {
		return 0
	}
	var entropy float64
	for _, count := range e.counts {
		p := float64(count) / float64(e.total)
		entropy -= p * math.Log2(p)
	}
	if e.overflow > 0 {
		p := float64(e.overflow) / float64(e.total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// Approximate reports whether the entropy is computed over a capped table.
func (e *EntropyCounter) Approximate() bool { return e.approx }
