// Package rag implements the retrieval core of the KnowLigo engine: a flat
// in-memory vector index, a BM25 lexical index, reciprocal-rank fusion of the
// two, and cross-encoder reranking. Concrete search backends (the in-process
// flat index, Qdrant) satisfy the same narrow interfaces so the pipeline
// layer never depends on a specific one.
package rag

import (
	"context"
	"errors"
)

// ErrIndexEmpty is returned by a vector index search when the index holds no
// vectors. Callers treat it as zero results, not as a request-fatal failure.
var ErrIndexEmpty = errors.New("rag: index is empty")

// Chunk is the immutable unit of knowledge produced at ingestion time.
// The retrieval engine only reads chunks; a reindex replaces the whole set.
type Chunk struct {
	// ID is the stable numeric identifier assigned at ingestion.
	ID int `json:"id"`

	// Text is the raw UTF-8 content of the chunk.
	Text string `json:"text"`

	// Source is the originating document (e.g. "planes.md").
	Source string `json:"source"`

	// Section is the human-readable section label within the source.
	Section string `json:"section"`
}

// Candidate is a chunk annotated with the scores accumulated as it moves
// through retrieval. Candidates are created per query and discarded after
// the response is assembled.
type Candidate struct {
	Chunk

	// DenseScore is the raw score from the dense leg. Its meaning is
	// metric-dependent: squared L2 distance (lower is closer) for the flat
	// corpus index, cosine similarity (higher is closer) for Qdrant. Zero
	// when the chunk did not appear in the dense result list.
	DenseScore float64

	// LexicalScore is the BM25 score from the lexical leg. Zero when the
	// chunk did not appear in the lexical result list.
	LexicalScore float64

	// FusedScore is the reciprocal-rank fusion score across both legs.
	FusedScore float64

	// Score is the primary relevance score exposed to callers: the fused
	// score after retrieval, replaced by the min-max-normalized rerank score
	// when reranking runs. FusedScore is kept alongside for diagnostics.
	Score float64
}

// Hit is a single vector- or lexical-index search result: a chunk reference
// plus the backend's raw score. Ordering semantics are documented on each
// index implementation.
type Hit struct {
	// ChunkID references the matched chunk.
	ChunkID int

	// Score is the backend's raw score for this hit (distance or similarity,
	// depending on the index metric).
	Score float64
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DenseSearcher is the nearest-neighbour search side of a vector index.
// Implementations must be safe for concurrent use once built.
type DenseSearcher interface {
	// Search returns up to k hits for the query vector, best first. If the
	// index holds fewer than k vectors all of them are returned; an index
	// with zero vectors returns ErrIndexEmpty.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// LexicalRanker ranks chunks by term-based relevance to a query.
// Implementations must be deterministic: identical query and corpus always
// yield identical scores and ordering.
type LexicalRanker interface {
	// Rank returns up to k hits ordered by descending relevance, ties broken
	// by ascending chunk ID. Chunks with zero relevance are omitted.
	Rank(query string, k int) []Hit
}

// PairwiseScorer computes pairwise (query, text) relevance with an opaque
// cross-encoder model. Higher scores mean more relevant; the scale is
// model-specific and normalized downstream.
type PairwiseScorer interface {
	// Score returns one relevance score per text, parallel to texts.
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Retriever is the interface the pipeline uses to turn a query into ranked
// candidates. denseQuery optionally overrides the text embedded for the
// vector leg (to support upstream query rewriting); when empty, query is
// used for both legs.
type Retriever interface {
	Retrieve(ctx context.Context, query, denseQuery string) ([]Candidate, error)
}

// Reranker re-scores a candidate list with a pairwise model and truncates it
// to the requested size. A no-op implementation is injected when reranking
// is disabled so callers never branch on presence.
type Reranker interface {
	// Rerank returns candidates ordered by pairwise relevance, truncated to
	// topN, with Score min-max-normalized into [0,1]. An empty candidate
	// list returns empty without invoking the model.
	Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Candidate, error)
}
