package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements rag.Embedder using the Gemini embedContent API
// via the official genai SDK. It is safe for concurrent use.
type GeminiEmbedder struct {
	// client is the shared genai client.
	client *genai.Client
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// dimensions is the desired embedding vector length (0 = model default).
	dimensions int
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Gemini API key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-004").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder from the given config.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: APIKey must not be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}
	return &GeminiEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var cfg *genai.EmbedContentConfig
	if e.dimensions > 0 {
		cfg = &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(e.dimensions)), //nolint:gosec // dimensions is a small positive config value
		}
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: got %d embeddings for %d inputs", len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embedder: empty embedding at index %d", i)
		}
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}
