package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/knowligo/knowligo-go/internal/embedder"
	"github.com/knowligo/knowligo-go/internal/ingestion"
	"github.com/knowligo/knowligo-go/internal/logging"
	"github.com/knowligo/knowligo-go/internal/rag"
)

// NewIngestCmd constructs the `knowligo ingest` command, which indexes the
// markdown knowledge base into the snapshot served by ask and serve.
func NewIngestCmd() *cobra.Command {
	var docsDir string
	var outPath string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the markdown knowledge base into a snapshot",
		Long: `Split the markdown knowledge base into chunks, embed them, and write the
resulting snapshot to disk. The snapshot is what 'knowligo serve' and
'knowligo ask' load at startup.

A metadata.json file in the docs directory may declare the support domain
and forbidden topics; both are carried into the snapshot and enforced by
query validation at serve time.

When QDRANT_HOST is set the chunks are additionally upserted into a Qdrant
collection, and serving uses Qdrant for dense search instead of the
in-memory index.

Environment variables:
  KNOWLIGO_DOCS        Docs directory (default: ./docs), overridden by --docs
  KNOWLIGO_SNAPSHOT    Snapshot path (default: ~/.knowligo/snapshot.json)
  EMBEDDING_PROVIDER   Embedding backend: ollama, openai, azure, gemini
  EMBEDDING_*          Provider-specific overrides (see README)
  QDRANT_HOST          Optional Qdrant server hostname
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: knowligo-docs)
  QDRANT_API_KEY       Optional API key for authenticated clusters

Examples:
  knowligo ingest --docs ./knowledge
  knowligo ingest --docs ./knowledge --out ./snapshot.json
  QDRANT_HOST=localhost knowligo ingest --docs ./knowledge`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			if docsDir == "" {
				docsDir = getEnvOrDefault("KNOWLIGO_DOCS", "docs")
			}

			if err := embedder.ValidateConfig(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			backend := embedder.ResolveBackend()
			model := embedder.ResolveModel(backend)
			log.Info("embedder initialised", slog.String("provider", backend), slog.String("model", model))

			// Optional Qdrant mirror. The snapshot is written either way so
			// serving can always fall back to the in-memory index.
			var store ingestion.VectorStore
			if qdrantHost := os.Getenv("QDRANT_HOST"); qdrantHost != "" {
				qdrantPort := getEnvInt("QDRANT_PORT", 6334)
				collection := getEnvOrDefault("QDRANT_COLLECTION", "knowligo-docs")
				vectorSize := uint64(embedder.DefaultDimensions(backend)) //nolint:gosec // dimensions are bounded

				qs, err := rag.NewQdrantSearcher(ctx, &rag.QdrantConfig{
					Host:       qdrantHost,
					Port:       qdrantPort,
					Collection: collection,
					VectorSize: vectorSize,
					APIKey:     os.Getenv("QDRANT_API_KEY"),
					UseTLS:     os.Getenv("QDRANT_TLS") == "true",
				})
				if err != nil {
					return fmt.Errorf("ingest: failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
				}
				defer qs.Close()
				store = qs
				log.Info("qdrant upsert enabled",
					slog.String("host", qdrantHost),
					slog.Int("port", qdrantPort),
					slog.String("collection", collection),
				)
			}

			p, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Provider:     backend,
				Model:        model,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.String("docs", docsDir))

			snap, err := p.Build(ctx, docsDir, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			if outPath == "" {
				outPath = os.Getenv("KNOWLIGO_SNAPSHOT")
			}
			if outPath == "" {
				outPath, err = ingestion.DefaultSnapshotPath()
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
			}
			if err := snap.Write(outPath); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("documents", len(snap.Documents)),
				slog.Int("chunks", len(snap.Chunks)),
				slog.String("snapshot", outPath),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docsDir, "docs", "d", "", "Directory of markdown documents (default: $KNOWLIGO_DOCS or ./docs)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Snapshot output path (default: $KNOWLIGO_SNAPSHOT or ~/.knowligo/snapshot.json)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum chunk length in runes (default 1024)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Overlap between consecutive chunks in runes (default 128)")

	return cmd
}
