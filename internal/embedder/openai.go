// Package embedder provides implementations of the rag.Embedder interface
// used by the retrieval engine and the semantic cache to turn Spanish query
// and document text into dense vectors. Each implementation talks to a
// different backend (OpenAI, Azure OpenAI, Ollama, Gemini); the HTTP-based
// ones use plain net/http with no extra SDK.
//
// All backends must be deterministic for identical input: the cache compares
// a fresh query embedding against stored ones, so a drifting embedder would
// silently break near-duplicate detection.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAIEmbedder implements rag.Embedder over the OpenAI embeddings REST
// API, in both plain OpenAI and Azure OpenAI flavors. The two differ only
// in URL shape and auth header. Safe for concurrent use.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string

	// dimensions requests a reduced vector length, 0 means model default.
	dimensions int

	// azure switches to deployment-style URLs with api-key header auth.
	azure      bool
	apiVersion string

	client *http.Client
}

// OpenAIConfig configures an OpenAIEmbedder for either flavor of the API.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI proper, or the
	// resource endpoint plus "/openai" for Azure.
	BaseURL string
	// APIKey authenticates every request.
	APIKey string
	// Model is the embedding model name, or the deployment name on Azure.
	Model string
	// Dimensions requests a reduced vector length; 0 keeps the model default.
	Dimensions int
	// Azure switches to deployment URLs and api-key header auth.
	Azure bool
	// APIVersion is the Azure api-version query value. Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIEmbedder returns a ready-to-use client for cfg.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// openaiEmbedRequest is the wire format of an embeddings call.
type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openaiEmbedResponse is the success body of the embeddings endpoint.
type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed converts a batch of texts into embeddings. The returned slice is
// parallel to the input.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := openaiEmbedRequest{Input: texts, Model: e.model}
	if e.dimensions > 0 {
		body.Dimensions = e.dimensions
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.requestURL(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: post embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai embedder: %s", apiErrorMessage(resp))
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openai embedder: decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: got %d embeddings for %d inputs", len(result.Data), len(texts))
	}

	// The API may return data out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: embedding index %d outside batch of %d", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}

	return embeddings, nil
}

// requestURL returns the embeddings endpoint for the configured flavor.
// Azure routes through a deployment path and versions the API explicitly.
func (e *OpenAIEmbedder) requestURL() string {
	if e.azure {
		return e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion
	}
	return e.baseURL + "/embeddings"
}
