package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant-backed dense index.
type QdrantConfig struct {
	// Host names the Qdrant server; localhost when empty.
	Host string

	// Port is the gRPC port; 6334 when zero.
	Port int

	// Collection is the collection holding the chunk vectors.
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// APIKey authenticates against managed clusters. Optional.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool
}

// QdrantSearcher implements DenseSearcher against a Qdrant collection, for
// corpora too large to hold in the in-process flat index. The collection
// uses the cosine metric, so hits come back ordered by descending similarity.
type QdrantSearcher struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantSearcher connects to Qdrant, ensures the target collection exists
// (creating it with the cosine metric if necessary), and returns a
// ready-to-use searcher.
func NewQdrantSearcher(ctx context.Context, cfg *QdrantConfig) (*QdrantSearcher, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant client: %w", err)
	}

	s := &QdrantSearcher{client: client, cfg: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the collection on first use. Cosine distance
// keeps scores in [-1, 1] regardless of the embedding backend's vector
// scale.
func (s *QdrantSearcher) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("rag: qdrant collection check: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// Upsert writes a batch of chunks and their embeddings into the collection.
// embeddings must be parallel to chunks. Point IDs are the chunk IDs, so a
// re-ingest of the same corpus overwrites in place.
func (s *QdrantSearcher) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("rag: qdrant upsert: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(c.ID)), //nolint:gosec // chunk IDs are small non-negative ints
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"text":    c.Text,
				"source":  c.Source,
				"section": c.Section,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant upsert: %w", err)
	}
	return nil
}

// Search returns up to k hits for the query vector, ordered by descending
// cosine similarity.
func (s *QdrantSearcher) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("rag: search k must be >= 1, got %d", k)
	}

	limit := uint64(k) //nolint:gosec // k validated non-negative above
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant search: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrIndexEmpty
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ChunkID: int(r.Id.GetNum()), //nolint:gosec // IDs written by Upsert fit in int
			Score:   float64(r.Score),
		})
	}
	return hits, nil
}

// Client exposes the underlying gRPC client for readiness probes.
func (s *QdrantSearcher) Client() *qdrant.Client { return s.client }

// Close closes the underlying gRPC connection.
func (s *QdrantSearcher) Close() error {
	return s.client.Close()
}
