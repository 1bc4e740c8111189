package rag

import (
	"context"
	"fmt"
	"sort"
)

// Metric selects the distance function of a FlatIndex.
type Metric int

const (
	// MetricL2 orders hits by ascending squared Euclidean distance
	// (smaller score = more similar). Used for the corpus index.
	MetricL2 Metric = iota

	// MetricInnerProduct orders hits by descending inner product (larger
	// score = more similar). Equivalent to cosine similarity when the
	// stored and query vectors are unit-normalized. Used for the cache index.
	MetricInnerProduct
)

// FlatIndex is an exact brute-force nearest-neighbour index held entirely in
// memory. It is built once and read-only afterwards, so concurrent searches
// need no locking. Exact search is the right trade-off at this corpus size;
// approximate structures only pay off orders of magnitude later.
type FlatIndex struct {
	// dim is the fixed dimensionality every vector must have.
	dim int

	// metric selects the distance function and hit ordering.
	metric Metric

	// ids[i] is the chunk ID of vectors[i].
	ids []int

	// vectors holds the stored embeddings in insertion order.
	vectors [][]float32
}

// NewFlatIndex constructs an empty FlatIndex for vectors of the given
// dimensionality.
func NewFlatIndex(dim int, metric Metric) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("rag: flat index dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim, metric: metric}, nil
}

// Add appends one vector under the given chunk ID.
func (x *FlatIndex) Add(chunkID int, vector []float32) error {
	if len(vector) != x.dim {
		return fmt.Errorf("rag: vector has dimension %d, index expects %d", len(vector), x.dim)
	}
	x.ids = append(x.ids, chunkID)
	x.vectors = append(x.vectors, vector)
	return nil
}

// Len returns the number of stored vectors.
func (x *FlatIndex) Len() int { return len(x.vectors) }

// Search returns up to k hits for the query vector, best first: ascending
// distance for MetricL2, descending similarity for MetricInnerProduct. Ties
// are broken by ascending chunk ID. If fewer than k vectors are stored all
// of them are returned; an empty index returns ErrIndexEmpty.
func (x *FlatIndex) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("rag: search k must be >= 1, got %d", k)
	}
	if len(x.vectors) == 0 {
		return nil, ErrIndexEmpty
	}
	if len(vector) != x.dim {
		return nil, fmt.Errorf("rag: query vector has dimension %d, index expects %d", len(vector), x.dim)
	}

	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		var score float64
		switch x.metric {
		case MetricInnerProduct:
			score = dot(vector, v)
		default:
			score = squaredL2(vector, v)
		}
		hits[i] = Hit{ChunkID: x.ids[i], Score: score}
	}

	asc := x.metric == MetricL2
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			if asc {
				return hits[i].Score < hits[j].Score
			}
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// dot returns the inner product of a and b. Both must have equal length.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// squaredL2 returns the squared Euclidean distance between a and b. The
// square root is skipped: it does not change the ordering.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
