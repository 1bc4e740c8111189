// Package ingestion builds the knowledge snapshot served by the retrieval
// engine. Markdown documents are split into header sections, sections into
// overlapping chunks, chunks embedded in batches, and the result serialized
// as a single JSON snapshot. An optional vector store receives the same
// chunks so dense search can run out of process. The pipeline is invoked by
// the `knowligo ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// VectorStore is the optional out-of-process destination for embedded chunks.
// *rag.QdrantSearcher satisfies it.
type VectorStore interface {
	// Upsert writes chunks and their embeddings, keyed by chunk ID so
	// re-ingesting the same corpus overwrites in place.
	Upsert(ctx context.Context, chunks []rag.Chunk, embeddings [][]float32) error
}

// Config tunes how documents are chunked and embedded.
type Config struct {
	// ChunkSize is the maximum chunk length in runes.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of runes repeated between consecutive
	// chunks. Defaults to DefaultChunkOverlap if zero; negative disables
	// overlap entirely.
	ChunkOverlap int

	// EmbedBatchSize is how many chunks are embedded per backend call.
	// Defaults to 32 if zero.
	EmbedBatchSize int

	// Provider and Model label the embedding backend in the snapshot
	// metadata. Informational only.
	Provider string
	Model    string
}

// Pipeline orchestrates the load → section → chunk → embed → snapshot flow
// over a markdown corpus directory.
type Pipeline struct {
	// embedder turns chunk text into dense vectors.
	embedder rag.Embedder

	// store optionally mirrors the embedded chunks into a vector database.
	// Nil means snapshot-only ingestion.
	store VectorStore

	// cfg is the config after defaults were applied.
	cfg *Config
}

// NewPipeline validates dependencies and applies config defaults.
func NewPipeline(embedder rag.Embedder, store VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	switch {
	case cfg.ChunkOverlap == 0:
		cfg.ChunkOverlap = DefaultChunkOverlap
	case cfg.ChunkOverlap < 0:
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Build ingests every markdown document under docsDir and returns the
// resulting snapshot. Chunk IDs are assigned sequentially in document order.
// The optional progress callback receives one human-readable line per stage.
func (p *Pipeline) Build(ctx context.Context, docsDir string, progress func(msg string)) (*Snapshot, error) {
	if progress == nil {
		progress = func(string) {}
	}

	docs, err := LoadDocuments(docsDir)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("ingestion: no markdown documents in %s", docsDir)
	}
	progress(fmt.Sprintf("loaded %d documents from %s", len(docs), docsDir))

	meta, err := LoadKnowledgeMeta(docsDir)
	if err != nil {
		return nil, err
	}

	var chunks []rag.Chunk
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		names = append(names, doc.Name)
		for _, sec := range ExtractSections(doc.Content, doc.Name) {
			for _, text := range ChunkText(sec.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap) {
				chunks = append(chunks, rag.Chunk{
					ID:      len(chunks),
					Text:    text,
					Source:  sec.Source,
					Section: sec.Header,
				})
			}
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion: no chunks produced from %s", docsDir)
	}
	progress(fmt.Sprintf("chunked %d documents into %d chunks", len(docs), len(chunks)))

	embeddings, err := p.embedAll(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:         snapshotVersion,
		CreatedAt:       time.Now().UTC(),
		Provider:        p.cfg.Provider,
		Model:           p.cfg.Model,
		Dimensions:      len(embeddings[0]),
		Domain:          meta.Domain,
		ForbiddenTopics: meta.ForbiddenTopics,
		Documents:       names,
		Chunks:          chunks,
		Embeddings:      embeddings,
	}

	if p.store != nil {
		if err := p.store.Upsert(ctx, chunks, embeddings); err != nil {
			return nil, fmt.Errorf("ingestion: vector store upsert: %w", err)
		}
		progress(fmt.Sprintf("upserted %d chunks into the vector store", len(chunks)))
	}

	return snap, nil
}

// embedAll embeds chunk texts in batches of cfg.EmbedBatchSize.
func (p *Pipeline) embedAll(ctx context.Context, chunks []rag.Chunk, progress func(msg string)) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vecs, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		embeddings = append(embeddings, vecs...)

		progress(fmt.Sprintf("embedded %d/%d chunks", end, len(chunks)))
	}
	return embeddings, nil
}
