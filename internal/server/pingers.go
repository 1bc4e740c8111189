package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// ModelPinger probes an LLM backend by sending a minimal single-message
// generate request. Each probe consumes a handful of tokens, which readiness
// checks are expected to amortize through their polling interval.
type ModelPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "groq").
	name string
}

// NewModelPinger constructs a ModelPinger for the given model and backend name.
func NewModelPinger(m model.BaseChatModel, name string) *ModelPinger {
	return &ModelPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return p.name }

// Ping sends a one-word prompt and checks that a response comes back.
func (p *ModelPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding a single short
// text. A working embedder is required for both retrieval and the semantic
// cache, so readiness must reflect its state.
type EmbedderPinger struct {
	embedder rag.Embedder
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder.
func NewEmbedderPinger(e rag.Embedder) *EmbedderPinger {
	return &EmbedderPinger{embedder: e}
}

// Name identifies the embedder in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds one short text and checks that a vector comes back.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// QdrantPinger reports whether the Qdrant instance backing dense retrieval
// answers its native HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger around an established client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name identifies Qdrant in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
