// Package dedup finds exact and near duplicates in a row stream. The near
// index is built per shard and merged at finalize, re-deriving winners so
// the result is independent of shard assignment. The exact index is fed
// from the single reader: its optional Bloom gate keeps unique content out
// of the hash table, and per-shard gates could not be merged without
// missing duplicates split across shards.
package dedup

import (
	"github.com/cespare/xxhash/v2"

	"github.com/datagrade/datagrade/pkg/sketch"
)

// ExactIndex tracks content-hash duplicates. The first occurrence of a
// content hash (the row with the lowest index) is the canonical copy; every
// later occurrence is a duplicate. An optional Bloom gate keeps first sight
// in the filter only, so the exact table holds duplicated content rather
// than every distinct row and memory stays bounded at the configured false
// positive cost.
type ExactIndex struct {
	first map[uint64]int64   // content hash -> lowest tracked row index
	dupes map[uint64][]int64 // content hash -> later row indexes
	gate  *sketch.BloomFilter
	rows  int64

	gated      bool
	gatedDupes int64 // duplicates whose first occurrence lives only in the gate
}

// NewExactIndex creates an index without a Bloom gate.
func NewExactIndex() *ExactIndex {
	return &ExactIndex{
		first: make(map[uint64]int64),
		dupes: make(map[uint64][]int64),
	}
}

// NewGatedExactIndex creates an index with a Bloom pre-filter sized for the
// expected row count and false positive budget. The filter never misses a
// planted duplicate; a false positive promotes a unique row early, which
// overcounts duplicates at most at the configured rate.
func NewGatedExactIndex(expectedRows uint64, fpp float64) *ExactIndex {
	idx := NewExactIndex()
	idx.gate = sketch.NewBloomFilter(expectedRows, fpp)
	idx.gated = true
	return idx
}

// HashContent returns the content hash of a row's text. Hashing rather than
// storing text keeps the index memory proportional to distinct count, not
// corpus size.
func HashContent(text []byte) uint64 {
	return xxhash.Sum64(text)
}

// Observe records one row's content hash. It returns true when the row is a
// duplicate of earlier content. Without a gate every hash is tracked in the
// exact table. With a gate, first sight lands only in the Bloom filter and
// the hash is promoted to the table on second sight; the promoted row
// becomes canonical and the untracked first occurrence is accounted as a
// duplicate.
func (x *ExactIndex) Observe(index int64, text []byte) bool {
	x.rows++
	h := HashContent(text)
	if x.gate != nil {
		if !x.gate.Contains(text) {
			// No false negatives: a miss proves the content is new.
			x.gate.Add(text)
			return false
		}
		if _, seen := x.first[h]; !seen {
			x.first[h] = index
			x.gatedDupes++
			return true
		}
	}
	if firstIdx, seen := x.first[h]; seen {
		if index < firstIdx {
			// Out-of-order delivery within a shard; keep the lowest index
			// canonical and demote the old winner.
			x.first[h] = index
			x.dupes[h] = append(x.dupes[h], firstIdx)
		} else {
			x.dupes[h] = append(x.dupes[h], index)
		}
		return true
	}
	x.first[h] = index
	return false
}

// Merge folds another shard's index into this one. Winners are re-derived
// per content hash: the lowest row index across both shards is canonical
// and every other occurrence becomes a duplicate.
func (x *ExactIndex) Merge(other *ExactIndex) {
	for h, otherFirst := range other.first {
		if mine, seen := x.first[h]; seen {
			if otherFirst < mine {
				x.first[h] = otherFirst
				x.dupes[h] = append(x.dupes[h], mine)
			} else {
				x.dupes[h] = append(x.dupes[h], otherFirst)
			}
		} else {
			x.first[h] = otherFirst
		}
		x.dupes[h] = append(x.dupes[h], other.dupes[h]...)
	}
	// Gates cannot be intersected, so a merged index only combines the
	// content both sides promoted. Observe never runs after a merge.
	x.gate = nil
	if other.gated {
		x.gated = true
	}
	x.gatedDupes += other.gatedDupes
	x.rows += other.rows
}

// Duplicates returns every duplicate row index with the canonical row it
// duplicates.
func (x *ExactIndex) Duplicates() map[int64]int64 {
	out := make(map[int64]int64)
	for h, list := range x.dupes {
		canonical := x.first[h]
		for _, idx := range list {
			out[idx] = canonical
		}
	}
	return out
}

// DuplicateCount returns the number of duplicate rows (occurrences beyond
// the first per content hash). In a gated index the untracked first sighting
// of each promoted hash counts as the duplicate, keeping the total equal to
// the ungated answer.
func (x *ExactIndex) DuplicateCount() int64 {
	n := x.gatedDupes
	for _, list := range x.dupes {
		n += int64(len(list))
	}
	return n
}

// DistinctCount returns the number of distinct contents. A gated index
// tracks only duplicated content, so the count is derived from the row
// total rather than the table.
func (x *ExactIndex) DistinctCount() int64 {
	if x.gated {
		return x.rows - x.DuplicateCount()
	}
	return int64(len(x.first))
}

// Rows returns the number of observed rows.
func (x *ExactIndex) Rows() int64 { return x.rows }
