package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Hybrid retrieval defaults. TopK matches the breadth the downstream
// reranker expects; DampingK=60 is the value from the original RRF paper.
const (
	DefaultTopK            = 15
	DefaultOverfetchFactor = 2
	DefaultDampingK        = 60
)

// HybridConfig holds the tuning knobs for hybrid retrieval.
type HybridConfig struct {
	// TopK is the number of fused candidates returned per query.
	// Defaults to DefaultTopK if zero.
	TopK int

	// OverfetchFactor multiplies TopK to size the per-leg candidate fetch,
	// giving fusion enough material to work with. Defaults to
	// DefaultOverfetchFactor if zero.
	OverfetchFactor int

	// DampingK is the rank-damping constant in the RRF formula
	// 1/(K + rank). It limits the dominance of rank-1 items.
	// Defaults to DefaultDampingK if zero.
	DampingK int
}

// HybridRetriever fuses dense vector search and BM25 lexical ranking into a
// single candidate list using reciprocal rank fusion. Both indexes are built
// once at startup and read-only afterwards, so Retrieve is safe for
// concurrent use.
type HybridRetriever struct {
	// embedder converts the dense-leg query text into a vector.
	embedder Embedder

	// dense is the vector search backend (flat index or Qdrant).
	dense DenseSearcher

	// lexical is the BM25 ranker. May be nil, in which case retrieval
	// degrades to dense-only ranking.
	lexical LexicalRanker

	// byID resolves hit IDs back to their chunks.
	byID map[int]Chunk

	// cfg holds the resolved retrieval configuration.
	cfg HybridConfig

	// log is the structured logger for degradation warnings.
	log *slog.Logger

	// degradedOnce ensures the lexical-degradation warning is logged once
	// per process, not per query.
	degradedOnce sync.Once
}

// NewHybridRetriever constructs a HybridRetriever over the given chunk
// corpus. lexical may be nil to run dense-only.
func NewHybridRetriever(embedder Embedder, dense DenseSearcher, lexical LexicalRanker, chunks []Chunk, cfg HybridConfig, log *slog.Logger) (*HybridRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if dense == nil {
		return nil, fmt.Errorf("rag: dense searcher must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = DefaultOverfetchFactor
	}
	if cfg.DampingK <= 0 {
		cfg.DampingK = DefaultDampingK
	}
	if log == nil {
		log = slog.Default()
	}

	byID := make(map[int]Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	return &HybridRetriever{
		embedder: embedder,
		dense:    dense,
		lexical:  lexical,
		byID:     byID,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Retrieve runs both search legs and fuses the results. denseQuery, when
// non-empty, is the text embedded for the vector leg (supporting upstream
// query rewriting); the lexical leg always scores the original query. Fused
// identity is the chunk ID, so a chunk found by both legs accumulates both
// rank contributions.
func (r *HybridRetriever) Retrieve(ctx context.Context, query, denseQuery string) ([]Candidate, error) {
	if denseQuery == "" {
		denseQuery = query
	}
	overfetch := r.cfg.TopK * r.cfg.OverfetchFactor

	vecs, err := r.embedder.Embed(ctx, []string{denseQuery})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one text", len(vecs))
	}

	denseHits, err := r.dense.Search(ctx, vecs[0], overfetch)
	if err != nil {
		if errors.Is(err, ErrIndexEmpty) {
			denseHits = nil
		} else {
			return nil, fmt.Errorf("rag: dense search: %w", err)
		}
	}

	var lexHits []Hit
	if r.lexical != nil {
		lexHits = r.lexical.Rank(query, overfetch)
	} else {
		r.degradedOnce.Do(func() {
			r.log.Warn("lexical ranker unavailable, degrading to dense-only retrieval")
		})
	}

	fused := r.fuse(denseHits, lexHits)
	if len(fused) > r.cfg.TopK {
		fused = fused[:r.cfg.TopK]
	}
	return fused, nil
}

// fuse merges the two ranked hit lists with reciprocal rank fusion:
// each chunk scores Σ 1/(K + rank) over every list it appears in, with
// 1-based ranks. The merged set is ordered by fused score descending, ties
// broken by the lower chunk ID for reproducibility.
func (r *HybridRetriever) fuse(denseHits, lexHits []Hit) []Candidate {
	k := float64(r.cfg.DampingK)
	merged := make(map[int]*Candidate, len(denseHits)+len(lexHits))

	for rank, h := range denseHits {
		chunk, ok := r.byID[h.ChunkID]
		if !ok {
			continue
		}
		merged[h.ChunkID] = &Candidate{
			Chunk:      chunk,
			DenseScore: h.Score,
			FusedScore: 1 / (k + float64(rank+1)),
		}
	}

	for rank, h := range lexHits {
		c, ok := merged[h.ChunkID]
		if !ok {
			chunk, present := r.byID[h.ChunkID]
			if !present {
				continue
			}
			c = &Candidate{Chunk: chunk}
			merged[h.ChunkID] = c
		}
		c.LexicalScore = h.Score
		c.FusedScore += 1 / (k + float64(rank+1))
	}

	out := make([]Candidate, 0, len(merged))
	for _, c := range merged {
		c.Score = c.FusedScore
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}
