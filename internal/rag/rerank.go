package rag

import (
	"context"
	"fmt"
	"sort"
)

// CrossEncoderReranker re-scores candidates with a pairwise (query, text)
// relevance model and keeps the best topN. The model's raw scale is
// model-specific, so returned scores are min-max-normalized into [0,1];
// the pre-rerank fused score stays on each candidate for diagnostics.
type CrossEncoderReranker struct {
	// scorer is the opaque pairwise relevance model.
	scorer PairwiseScorer
}

// NewCrossEncoderReranker constructs a reranker over the given pairwise model.
func NewCrossEncoderReranker(scorer PairwiseScorer) (*CrossEncoderReranker, error) {
	if scorer == nil {
		return nil, fmt.Errorf("rag: pairwise scorer must not be nil")
	}
	return &CrossEncoderReranker{scorer: scorer}, nil
}

// Rerank scores every candidate against the query, sorts by descending raw
// score (ties broken by ascending chunk ID), truncates to topN, and
// normalizes the surviving scores into [0,1] with (raw−min)/(max−min).
// When max == min all normalized scores are 0. An empty candidate list
// returns empty without invoking the model.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	raw, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rag: pairwise scoring: %w", err)
	}
	if len(raw) != len(candidates) {
		return nil, fmt.Errorf("rag: pairwise scorer returned %d scores for %d texts", len(raw), len(candidates))
	}

	type scored struct {
		cand Candidate
		raw  float64
	}
	rows := make([]scored, len(candidates))
	for i, c := range candidates {
		rows[i] = scored{cand: c, raw: raw[i]}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].raw != rows[j].raw {
			return rows[i].raw > rows[j].raw
		}
		return rows[i].cand.ID < rows[j].cand.ID
	})

	if topN > 0 && topN < len(rows) {
		rows = rows[:topN]
	}

	minRaw, maxRaw := rows[len(rows)-1].raw, rows[0].raw
	span := maxRaw - minRaw

	out := make([]Candidate, len(rows))
	for i, row := range rows {
		c := row.cand
		if span > 0 {
			c.Score = (row.raw - minRaw) / span
		} else {
			c.Score = 0
		}
		out[i] = c
	}
	return out, nil
}

// NopReranker is the null-object reranker injected when reranking is
// disabled. It returns the candidates untouched so downstream code keeps
// the fused ordering and scores.
type NopReranker struct{}

// Rerank returns candidates unchanged and never invokes a model.
func (NopReranker) Rerank(_ context.Context, _ string, candidates []Candidate, _ int) ([]Candidate, error) {
	return candidates, nil
}
