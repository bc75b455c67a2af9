package dedup

import (
	"math"
	"sort"
)

// DefaultSimilarityThreshold is the cosine similarity above which two
// embeddings count as near duplicates.
const DefaultSimilarityThreshold = 0.95

// Vector is a row's embedding with its row index.
type Vector struct {
	Index     int64
	Embedding []float32
}

// Cluster is a group of near-duplicate rows. Representative is the lowest
// row index in the cluster; Members holds every row including it.
type Cluster struct {
	Representative int64   `json:"representative"`
	Members        []int64 `json:"members"`
}

// NearIndex clusters row embeddings by cosine similarity. Shards collect
// vectors independently; clustering happens once after merge, so cluster
// membership is independent of shard assignment. Capacity bounds memory:
// past it, new vectors are dropped and Truncated reports how many.
type NearIndex struct {
	threshold float64
	capacity  int
	vectors   []Vector
	truncated int64
}

// NewNearIndex creates an index with the given similarity threshold and
// vector capacity. capacity <= 0 means unbounded.
func NewNearIndex(threshold float64, capacity int) *NearIndex {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &NearIndex{threshold: threshold, capacity: capacity}
}

// Observe records one row's embedding.
func (n *NearIndex) Observe(index int64, embedding []float32) {
	if n.capacity > 0 && len(n.vectors) >= n.capacity {
		n.truncated++
		return
	}
	n.vectors = append(n.vectors, Vector{Index: index, Embedding: embedding})
}

// Merge folds another shard's vectors into this one.
func (n *NearIndex) Merge(other *NearIndex) {
	for _, v := range other.vectors {
		n.Observe(v.Index, v.Embedding)
	}
	n.truncated += other.truncated
}

// Truncated returns the number of vectors dropped at capacity.
func (n *NearIndex) Truncated() int64 { return n.truncated }

// Clusters performs single-link greedy clustering over the collected
// vectors and returns every cluster with two or more members, ordered by
// representative index. Vectors are processed in row order so the cluster
// representative is always the lowest index regardless of insertion order.
func (n *NearIndex) Clusters() []Cluster {
	vecs := make([]Vector, len(n.vectors))
	copy(vecs, n.vectors)
	sort.Slice(vecs, func(i, j int) bool { return vecs[i].Index < vecs[j].Index })

	assigned := make([]int, len(vecs))
	for i := range assigned {
		assigned[i] = -1
	}
	var clusters []Cluster
	for i := range vecs {
		if assigned[i] >= 0 {
			continue
		}
		c := Cluster{Representative: vecs[i].Index, Members: []int64{vecs[i].Index}}
		ci := len(clusters)
		assigned[i] = ci
		for j := i + 1; j < len(vecs); j++ {
			if assigned[j] >= 0 {
				continue
			}
			if CosineSimilarity(vecs[i].Embedding, vecs[j].Embedding) >= n.threshold {
				assigned[j] = ci
				c.Members = append(c.Members, vecs[j].Index)
			}
		}
		clusters = append(clusters, c)
	}

	out := clusters[:0]
	for _, c := range clusters {
		if len(c.Members) > 1 {
			out = append(out, c)
		}
	}
	return out
}

// NearDuplicateCount returns the number of rows that are near duplicates of
// an earlier row (cluster members beyond the representative).
func (n *NearIndex) NearDuplicateCount() int64 {
	var count int64
	for _, c := range n.Clusters() {
		count += int64(len(c.Members) - 1)
	}
	return count
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
