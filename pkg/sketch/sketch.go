// Package sketch provides memory-bounded, mergeable statistical estimators
// for streaming dataset analysis.
//
// Every estimator follows the same contract: Update feeds one value, Merge
// folds in the state of another shard, and the finalized output is identical
// (within each estimator's stated error bound) whether rows were fed
// sequentially or via merged partial shards. Merge is associative and
// commutative, which is what makes sharded execution possible without
// reprocessing rows.
package sketch

import (
	"github.com/cespare/xxhash/v2"
)

// hash64 is the common hash for all estimators. xxhash is collision-resistant
// enough for cardinality and membership sketches and much faster than
// cryptographic hashes.
func hash64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// hash64Seed derives an independent hash stream from a seed. Used by the
// Bloom filter to simulate k hash functions from one base hash.
func hash64Seed(b []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	d.Write(b)
	return d.Sum64()
}
