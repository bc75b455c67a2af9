package sketch

import "math"

// BloomFilter is an approximate-membership structure used to gate the exact
// duplicate hash table: only values the filter has already seen are promoted
// to the exact table, so memory stays bounded on mostly-unique inputs.
//
// Contains never returns a false negative; false positives occur at most at
// the configured rate. Merge ORs the bit arrays, which requires identical
// sizing on both sides and is associative and commutative.
type BloomFilter struct {
	bits []uint64
	m    uint64 // number of bits
	k    uint64 // number of hash functions
	n    uint64 // values added
	fpp  float64
}

// DefaultBloomFPP is the false-positive budget used when the caller does not
// configure one.
const DefaultBloomFPP = 0.01

// NewBloomFilter sizes a filter for the expected number of items and the
// target false-positive probability.
func NewBloomFilter(expectedItems uint64, fpp float64) *BloomFilter {
	if expectedItems == 0 {
		expectedItems = 1 << 20
	}
	if fpp <= 0 || fpp >= 1 {
		fpp = DefaultBloomFPP
	}

	// Optimal sizing: m = -n*ln(p)/ln(2)^2, k = m/n*ln(2).
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(expectedItems) * math.Log(fpp) / (ln2 * ln2)))
	k := uint64(math.Round(float64(m) / float64(expectedItems) * ln2))
	if k < 1 {
		k = 1
	}
	// Round bits up to whole words.
	words := (m + 63) / 64

	return &BloomFilter{
		bits: make([]uint64, words),
		m:    words * 64,
		k:    k,
		fpp:  fpp,
	}
}

// Add inserts a value.
func (b *BloomFilter) Add(value []byte) {
	h1 := hash64(value)
	h2 := hash64Seed(value, 0x9E3779B97F4A7C15)
	for i := uint64(0); i < b.k; i++ {
		// Double hashing: h1 + i*h2 spreads k probes from two hashes.
		bit := (h1 + i*h2) % b.m
		b.bits[bit/64] |= 1 << (bit % 64)
	}
	b.n++
}

// Contains reports whether the value may have been added. False positives
// are possible at the configured rate; false negatives are not.
func (b *BloomFilter) Contains(value []byte) bool {
	h1 := hash64(value)
	h2 := hash64Seed(value, 0x9E3779B97F4A7C15)
	for i := uint64(0); i < b.k; i++ {
		bit := (h1 + i*h2) % b.m
		if b.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// Merge ORs another filter into this one. Both filters must have been
// created with the same sizing parameters.
func (b *BloomFilter) Merge(other *BloomFilter) {
	if other == nil || other.m != b.m || other.k != b.k {
		return
	}
	for i, w := range other.bits {
		b.bits[i] |= w
	}
	b.n += other.n
}

// FalsePositiveRate returns the configured false-positive budget.
func (b *BloomFilter) FalsePositiveRate() float64 { return b.fpp }

// Added returns the number of values inserted.
func (b *BloomFilter) Added() uint64 { return b.n }
