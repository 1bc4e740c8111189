// Package reranker provides implementations of the rag.PairwiseScorer
// interface for scoring (query, text) pairs with a cross-encoder model. The
// model runs out of process; scoring happens over plain HTTP against a
// text-embeddings-inference style /rerank endpoint, so no ML runtime is
// linked into the binary.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultModel names the cross-encoder assumed to be behind the rerank
// endpoint when RERANK_MODEL is unset. Informational: the model is chosen
// by the inference server, not by this client.
const DefaultModel = "cross-encoder/ms-marco-MiniLM-L-6-v2"

// TEIScorer implements rag.PairwiseScorer against a text-embeddings-inference
// rerank endpoint. It is safe for concurrent use.
type TEIScorer struct {
	// baseURL is the inference server base (e.g. "http://localhost:8080").
	baseURL string
	// apiKey is the optional Bearer token.
	apiKey string
	// client is the shared HTTP client; its Timeout bounds each request.
	client *http.Client
}

// TEIConfig holds the settings for constructing a TEIScorer.
type TEIConfig struct {
	// BaseURL is the inference server base URL.
	BaseURL string
	// APIKey is the optional authentication token.
	APIKey string
	// Timeout bounds each scoring request. Defaults to 30s if zero.
	Timeout time.Duration
}

// NewTEIScorer constructs a TEIScorer from the given config.
func NewTEIScorer(cfg *TEIConfig) (*TEIScorer, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("reranker: BaseURL must not be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TEIScorer{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// teiRerankRequest is the JSON body sent to the /rerank endpoint.
type teiRerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

// teiRerankResult is one element of the /rerank response array.
type teiRerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// teiError is the JSON error body returned on failures.
type teiError struct {
	Error string `json:"error"`
}

// Score returns one relevance score per text, parallel to the input slice.
// Higher means more relevant; the scale is model-specific and normalized by
// the caller.
func (s *TEIScorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(teiRerankRequest{
		Query:     query,
		Texts:     texts,
		RawScores: true,
	})
	if err != nil {
		return nil, fmt.Errorf("reranker: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("reranker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reranker: post rerank: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure teiError
		if err := json.NewDecoder(resp.Body).Decode(&failure); err == nil && failure.Error != "" {
			return nil, fmt.Errorf("reranker: %s", failure.Error)
		}
		return nil, fmt.Errorf("reranker: HTTP %d", resp.StatusCode)
	}

	var results []teiRerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("reranker: decode response: %w", err)
	}
	if len(results) != len(texts) {
		return nil, fmt.Errorf("reranker: got %d scores for %d texts", len(results), len(texts))
	}

	// The server returns results ordered by score; restore input order.
	scores := make([]float64, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("reranker: index %d out of range [0, %d)", r.Index, len(texts))
		}
		scores[r.Index] = r.Score
	}
	return scores, nil
}
