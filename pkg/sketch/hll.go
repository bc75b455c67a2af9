package sketch

import "math"

// HyperLogLog estimates distinct value counts in bounded memory.
// With precision p it uses 2^p one-byte registers; the standard error is
// roughly 1.04/sqrt(2^p). Merge takes the per-register maximum, which is
// associative, commutative, and idempotent.
type HyperLogLog struct {
	registers []uint8
	m         uint32 // number of registers
	precision uint8  // log2(m)
}

// DefaultHLLPrecision yields 16384 registers (~0.8% standard error).
const DefaultHLLPrecision = 14

// NewHyperLogLog creates an estimator with the given precision (4..16).
func NewHyperLogLog(precision uint8) *HyperLogLog {
	if precision < 4 || precision > 16 {
		precision = DefaultHLLPrecision
	}
	m := uint32(1) << precision
	return &HyperLogLog{
		registers: make([]uint8, m),
		m:         m,
		precision: precision,
	}
}

// Add adds a value to the estimator.
func (h *HyperLogLog) Add(value []byte) {
	x := hash64(value)

	// Register index from the first p bits.
	j := x >> (64 - h.precision)

	// Rank of the first set bit in the remaining stream.
	w := x << h.precision
	rho := uint8(1)
	for w&(1<<63) == 0 && rho < 65-h.precision {
		rho++
		w <<= 1
	}

	if rho > h.registers[j] {
		h.registers[j] = rho
	}
}

// Merge folds another estimator into this one. Both must use the same
// precision.
func (h *HyperLogLog) Merge(other *HyperLogLog) {
	if other == nil || other.precision != h.precision {
		return
	}
	for i, v := range other.registers {
		if v > h.registers[i] {
			h.registers[i] = v
		}
	}
}

// Count returns the estimated cardinality.
func (h *HyperLogLog) Count() uint64 {
	alpha := 0.7213 / (1 + 1.079/float64(h.m))

	var sum float64
	zeros := 0
	for _, val := range h.registers {
		sum += 1.0 / math.Pow(2, float64(val))
		if val == 0 {
			zeros++
		}
	}

	estimate := alpha * float64(h.m) * float64(h.m) / sum

	// Small range correction.
	if estimate <= 2.5*float64(h.m) && zeros > 0 {
		estimate = float64(h.m) * math.Log(float64(h.m)/float64(zeros))
	}

	return uint64(estimate)
}

// StandardError returns the theoretical relative error of the estimate.
func (h *HyperLogLog) StandardError() float64 {
	return 1.04 / math.Sqrt(float64(h.m))
}
