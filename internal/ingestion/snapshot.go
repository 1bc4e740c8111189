package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// snapshotVersion is the current snapshot format version. Load rejects
// snapshots written by an incompatible build.
const snapshotVersion = "v1"

// DefaultSnapshotPath returns the default snapshot location,
// ~/.knowligo/snapshot.json. The directory is created by Write when needed.
func DefaultSnapshotPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("ingestion: could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".knowligo", "snapshot.json"), nil
}

// Snapshot is the serialized knowledge base: every chunk, its embedding, and
// the build metadata the serving side needs to reconstruct the retrieval
// indexes without re-embedding the corpus. It is written once at ingest time
// and read-only afterwards.
type Snapshot struct {
	// Version identifies the snapshot format.
	Version string `json:"version"`

	// CreatedAt is the UTC build time.
	CreatedAt time.Time `json:"created_at"`

	// Provider and Model record which embedding backend produced the
	// vectors. Serving with a different backend gives meaningless distances,
	// so these are surfaced in logs at load time.
	Provider string `json:"embedding_provider,omitempty"`
	Model    string `json:"embedding_model,omitempty"`

	// Dimensions is the embedding vector size shared by all entries.
	Dimensions int `json:"embedding_dimensions"`

	// Domain and ForbiddenTopics carry the corpus policy for the validator.
	Domain          string   `json:"domain,omitempty"`
	ForbiddenTopics []string `json:"forbidden_topics,omitempty"`

	// Documents lists the source file names that were indexed.
	Documents []string `json:"documents"`

	// Chunks holds the corpus in chunk-ID order.
	Chunks []rag.Chunk `json:"chunks"`

	// Embeddings[i] is the vector for Chunks[i].
	Embeddings [][]float32 `json:"embeddings"`
}

// Write serializes the snapshot to path, creating parent directories as
// needed. The JSON is compact: embeddings dominate the size and are not
// meant for human eyes.
func (s *Snapshot) Write(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ingestion: creating snapshot directory: %w", err)
		}
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("ingestion: encoding snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("ingestion: writing snapshot %s: %w", path, err)
	}
	return nil
}

// LoadSnapshot reads and validates a snapshot file. Chunks and embeddings
// must be parallel and every vector must match the declared dimensionality.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading snapshot %s: %w", path, err)
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("ingestion: parsing snapshot %s: %w", path, err)
	}

	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("ingestion: snapshot %s has version %q, this build reads %q",
			path, s.Version, snapshotVersion)
	}
	if len(s.Chunks) != len(s.Embeddings) {
		return nil, fmt.Errorf("ingestion: snapshot %s has %d chunks but %d embeddings",
			path, len(s.Chunks), len(s.Embeddings))
	}
	if len(s.Chunks) == 0 {
		return nil, fmt.Errorf("ingestion: snapshot %s is empty", path)
	}
	for i, vec := range s.Embeddings {
		if len(vec) != s.Dimensions {
			return nil, fmt.Errorf("ingestion: snapshot %s embedding %d has dimension %d, expected %d",
				path, i, len(vec), s.Dimensions)
		}
	}
	return &s, nil
}

// FlatIndex builds an in-memory L2 index over the snapshot's embeddings,
// keyed by chunk ID. This is the dense searcher used when no Qdrant backend
// is configured.
func (s *Snapshot) FlatIndex() (*rag.FlatIndex, error) {
	idx, err := rag.NewFlatIndex(s.Dimensions, rag.MetricL2)
	if err != nil {
		return nil, err
	}
	for i, c := range s.Chunks {
		if err := idx.Add(c.ID, s.Embeddings[i]); err != nil {
			return nil, fmt.Errorf("ingestion: indexing chunk %d: %w", c.ID, err)
		}
	}
	return idx, nil
}
