package ingestion

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// stubEmbedder returns fixed-size vectors and records each batch it receives.
type stubEmbedder struct {
	dims    int
	batches [][]string
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dims)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

// stubVectorStore records the chunks and embeddings passed to Upsert.
type stubVectorStore struct {
	chunks     []rag.Chunk
	embeddings [][]float32
	err        error
}

func (s *stubVectorStore) Upsert(_ context.Context, chunks []rag.Chunk, embeddings [][]float32) error {
	if s.err != nil {
		return s.err
	}
	s.chunks = chunks
	s.embeddings = embeddings
	return nil
}

// writeCorpus creates a small two-document corpus with a policy file and
// returns its directory.
func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "planes.md", `# Planes

Plan Básico: soporte 8x5 por correo.
Plan Premium: soporte 24/7 con técnico dedicado.

## Precios

Consultar con el equipo de ventas.
`)
	writeFile(t, dir, "sla.md", `# SLA

Incidentes críticos: respuesta en 1 hora.
Incidentes menores: respuesta en 8 horas.
`)
	writeFile(t, dir, "metadata.json", `{
  "domain": "IT Support Services",
  "allowed_topics": ["planes", "sla"],
  "forbidden_topics": ["hacking", "apuestas"]
}`)

	return dir
}

func TestNewPipeline_NilEmbedder(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(nil, nil, nil); err == nil {
		t.Fatal("expected error for nil embedder")
	}
}

func TestNewPipeline_Defaults(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&stubEmbedder{dims: 4}, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if p.cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize: got %d, want %d", p.cfg.ChunkSize, DefaultChunkSize)
	}
	if p.cfg.ChunkOverlap != DefaultChunkOverlap {
		t.Errorf("ChunkOverlap: got %d, want %d", p.cfg.ChunkOverlap, DefaultChunkOverlap)
	}
	if p.cfg.EmbedBatchSize != 32 {
		t.Errorf("EmbedBatchSize: got %d, want 32", p.cfg.EmbedBatchSize)
	}
}

func TestNewPipeline_ClampsExcessiveOverlap(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&stubEmbedder{dims: 4}, nil, &Config{ChunkSize: 200, ChunkOverlap: 300})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.cfg.ChunkOverlap != 20 {
		t.Errorf("expected overlap clamped to size/10 = 20, got %d", p.cfg.ChunkOverlap)
	}
}

func TestPipeline_Build(t *testing.T) {
	t.Parallel()

	dir := writeCorpus(t)
	emb := &stubEmbedder{dims: 4}
	p, err := NewPipeline(emb, nil, &Config{Provider: "ollama", Model: "nomic-embed-text"})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	var messages []string
	snap, err := p.Build(context.Background(), dir, func(msg string) {
		messages = append(messages, msg)
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if snap.Version != snapshotVersion {
		t.Errorf("version: got %q", snap.Version)
	}
	if snap.Provider != "ollama" || snap.Model != "nomic-embed-text" {
		t.Errorf("backend labels: got %q/%q", snap.Provider, snap.Model)
	}
	if snap.Dimensions != 4 {
		t.Errorf("dimensions: got %d, want 4", snap.Dimensions)
	}
	if snap.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	if snap.Domain != "IT Support Services" {
		t.Errorf("domain: got %q", snap.Domain)
	}
	if len(snap.ForbiddenTopics) != 2 || snap.ForbiddenTopics[0] != "hacking" {
		t.Errorf("forbidden topics: got %v", snap.ForbiddenTopics)
	}

	if len(snap.Documents) != 2 || snap.Documents[0] != "planes.md" || snap.Documents[1] != "sla.md" {
		t.Errorf("documents: got %v", snap.Documents)
	}

	if len(snap.Chunks) == 0 || len(snap.Chunks) != len(snap.Embeddings) {
		t.Fatalf("got %d chunks, %d embeddings", len(snap.Chunks), len(snap.Embeddings))
	}
	for i, c := range snap.Chunks {
		if c.ID != i {
			t.Errorf("chunk %d has ID %d, expected sequential IDs", i, c.ID)
		}
		if c.Source == "" || c.Section == "" || c.Text == "" {
			t.Errorf("chunk %d has empty metadata: %+v", i, c)
		}
	}

	// Sections become labels: the planes.md corpus has Planes and Precios.
	var sawPrecios bool
	for _, c := range snap.Chunks {
		if c.Section == "Precios" {
			sawPrecios = true
		}
	}
	if !sawPrecios {
		t.Error("expected a chunk labeled with the Precios section")
	}

	if len(messages) == 0 {
		t.Error("expected progress messages")
	}
	var sawEmbedded bool
	for _, m := range messages {
		if strings.Contains(m, "embedded") {
			sawEmbedded = true
		}
	}
	if !sawEmbedded {
		t.Errorf("expected an embedding progress message, got %v", messages)
	}
}

func TestPipeline_Build_BatchesEmbeddings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "# Sección %d\n\nContenido de la sección %d.\n\n", i, i)
	}
	writeFile(t, dir, "doc.md", b.String())

	emb := &stubEmbedder{dims: 4}
	p, err := NewPipeline(emb, nil, &Config{EmbedBatchSize: 2})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	snap, err := p.Build(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(snap.Chunks) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(snap.Chunks))
	}

	if len(emb.batches) != 3 {
		t.Fatalf("expected 3 batches for 5 chunks at size 2, got %d", len(emb.batches))
	}
	for i, want := range []int{2, 2, 1} {
		if len(emb.batches[i]) != want {
			t.Errorf("batch %d: got %d texts, want %d", i, len(emb.batches[i]), want)
		}
	}
}

func TestPipeline_Build_UpsertsIntoStore(t *testing.T) {
	t.Parallel()

	dir := writeCorpus(t)
	store := &stubVectorStore{}
	p, err := NewPipeline(&stubEmbedder{dims: 4}, store, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	snap, err := p.Build(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(store.chunks) != len(snap.Chunks) {
		t.Errorf("store received %d chunks, snapshot has %d", len(store.chunks), len(snap.Chunks))
	}
	if len(store.embeddings) != len(snap.Embeddings) {
		t.Errorf("store received %d embeddings, snapshot has %d", len(store.embeddings), len(snap.Embeddings))
	}
}

func TestPipeline_Build_UpsertErrorFails(t *testing.T) {
	t.Parallel()

	dir := writeCorpus(t)
	store := &stubVectorStore{err: fmt.Errorf("qdrant unavailable")}
	p, err := NewPipeline(&stubEmbedder{dims: 4}, store, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.Build(context.Background(), dir, nil); err == nil {
		t.Fatal("expected upsert error to propagate")
	}
}

func TestPipeline_Build_EmbedderErrorFails(t *testing.T) {
	t.Parallel()

	dir := writeCorpus(t)
	p, err := NewPipeline(&stubEmbedder{dims: 4, err: fmt.Errorf("backend down")}, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.Build(context.Background(), dir, nil); err == nil {
		t.Fatal("expected embedder error to propagate")
	}
}

func TestPipeline_Build_EmptyDirFails(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&stubEmbedder{dims: 4}, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	if _, err := p.Build(context.Background(), t.TempDir(), nil); err == nil {
		t.Fatal("expected error for a directory with no documents")
	}
}
