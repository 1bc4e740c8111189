//go:build integration

package embedder

import (
	"context"
	"math"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration performs real HTTP calls against a locally
// running Ollama instance. Beyond the basic round trip it checks the property
// the semantic cache depends on: two phrasings of the same question must land
// closer together than two unrelated questions.
//
// Needs a running Ollama with the model pulled:
//
//	ollama pull nomic-embed-text
//
// then:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// Set OLLAMA_HOST when Ollama is not on localhost:11434.
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = "nomic-embed-text"
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	texts := []string{
		"¿Qué planes de soporte tienen disponibles?",
		"¿Cuáles son los planes de soporte que ofrecen?",
		"¿Cómo configuro el reenvío de puertos en mi router?",
	}

	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(vecs))
	}

	dim := len(vecs[0])
	for i, vec := range vecs {
		if len(vec) != dim {
			t.Fatalf("embedding[%d]: dim=%d, want %d (mixed dimensions)", i, len(vec), dim)
		}
	}
	t.Logf("model=%s dim=%d", model, dim)

	near := cosine(vecs[0], vecs[1])
	far := cosine(vecs[0], vecs[2])
	t.Logf("similarity paraphrase=%.4f unrelated=%.4f", near, far)

	if near <= far {
		t.Errorf("paraphrase similarity %.4f is not above unrelated similarity %.4f; cache lookups would misfire", near, far)
	}
}

// cosine returns the cosine similarity between two equal-length vectors.
func cosine(a, b []float32) float64 {
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
