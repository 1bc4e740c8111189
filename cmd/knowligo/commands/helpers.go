package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/knowligo/knowligo-go/internal/cache"
	"github.com/knowligo/knowligo-go/internal/embedder"
	"github.com/knowligo/knowligo-go/internal/ingestion"
	"github.com/knowligo/knowligo-go/internal/intent"
	"github.com/knowligo/knowligo-go/internal/pipeline"
	"github.com/knowligo/knowligo-go/internal/provider"
	"github.com/knowligo/knowligo-go/internal/rag"
	"github.com/knowligo/knowligo-go/internal/reranker"
	"github.com/knowligo/knowligo-go/internal/responder"
	"github.com/knowligo/knowligo-go/internal/server"
	"github.com/knowligo/knowligo-go/internal/store"
	"github.com/knowligo/knowligo-go/internal/validate"
)

// engine bundles the fully wired query pipeline with the resources the serve
// and ask commands need alongside it.
type engine struct {
	// pipeline processes queries end to end.
	pipeline *pipeline.Pipeline
	// cache is the semantic cache for the server's stats and clear endpoints.
	// Nil when caching is disabled.
	cache cache.Cache
	// queryLog is the persistent query log shared with the server.
	queryLog store.QueryLog
	// pingers are the dependency probes for the readiness endpoint.
	pingers []server.Pinger
	// close releases the engine's resources (query log, Qdrant connection).
	close func()
}

// buildEngine wires the full query pipeline from environment configuration:
// chat model, embedder, knowledge snapshot, hybrid retrieval, optional
// reranker and cache, and the SQLite query log. Shared by serve and ask so
// both commands answer identically.
func buildEngine(ctx context.Context, log *slog.Logger) (*engine, error) {
	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	providerName := getEnvOrDefault("MODEL_PROVIDER", "groq")
	log.Info("provider initialised", slog.String("provider", providerName))

	// One embedder serves both dense retrieval and the semantic cache.
	if err := embedder.ValidateConfig(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	embBackend := embedder.ResolveBackend()
	embModel := embedder.ResolveModel(embBackend)
	log.Info("embedder initialised", slog.String("provider", embBackend), slog.String("model", embModel))

	snapPath := os.Getenv("KNOWLIGO_SNAPSHOT")
	if snapPath == "" {
		snapPath, err = ingestion.DefaultSnapshotPath()
		if err != nil {
			return nil, err
		}
	}
	snap, err := ingestion.LoadSnapshot(snapPath)
	if err != nil {
		return nil, fmt.Errorf("load knowledge snapshot %s (run 'knowligo ingest' first): %w", snapPath, err)
	}
	log.Info("knowledge snapshot loaded",
		slog.String("path", snapPath),
		slog.Int("documents", len(snap.Documents)),
		slog.Int("chunks", len(snap.Chunks)),
		slog.Int("dimensions", snap.Dimensions),
	)

	// Vectors embedded by a different backend or model live in a different
	// space than the snapshot's, which silently ruins similarity search.
	mismatch := snap.Provider != "" && snap.Provider != embBackend
	if snap.Model != "" && snap.Model != embModel {
		mismatch = true
	}
	if mismatch {
		log.Warn("embedder differs from the one that built the snapshot, similarity scores may be unreliable",
			slog.String("snapshot_provider", snap.Provider),
			slog.String("snapshot_model", snap.Model),
			slog.String("provider", embBackend),
			slog.String("model", embModel),
		)
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	ok := false
	defer func() {
		if !ok {
			closeAll()
		}
	}()

	pingers := []server.Pinger{
		server.NewModelPinger(chatModel, providerName),
		server.NewEmbedderPinger(emb),
	}

	// Dense leg: Qdrant when configured, the in-memory flat index otherwise.
	var dense rag.DenseSearcher
	if qdrantHost := os.Getenv("QDRANT_HOST"); qdrantHost != "" {
		qdrantPort := getEnvInt("QDRANT_PORT", 6334)
		searcher, err := rag.NewQdrantSearcher(ctx, &rag.QdrantConfig{
			Host:       qdrantHost,
			Port:       qdrantPort,
			Collection: getEnvOrDefault("QDRANT_COLLECTION", "knowligo-docs"),
			VectorSize: uint64(snap.Dimensions), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
		}
		closers = append(closers, func() { _ = searcher.Close() })
		dense = searcher
		pingers = append(pingers, server.NewQdrantPinger(searcher.Client()))
		log.Info("dense retrieval: qdrant", slog.String("host", qdrantHost), slog.Int("port", qdrantPort))
	} else {
		idx, err := snap.FlatIndex()
		if err != nil {
			return nil, err
		}
		dense = idx
		log.Info("dense retrieval: in-memory flat index", slog.Int("vectors", idx.Len()))
	}

	retriever, err := rag.NewHybridRetriever(emb, dense, rag.NewBM25Index(snap.Chunks), snap.Chunks, rag.HybridConfig{
		TopK:            getEnvInt("TOP_K_RETRIEVAL", 0),
		OverfetchFactor: getEnvInt("DENSE_OVERFETCH_FACTOR", 0),
		DampingK:        getEnvInt("RRF_DAMPING_K", 0),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build retriever: %w", err)
	}

	// Cross-encoder reranking needs an inference endpoint; without one the
	// fused order is served as-is.
	var rerank rag.Reranker
	if getEnvOrDefault("RERANK_ENABLED", "true") != "false" {
		endpoint := os.Getenv("RERANK_ENDPOINT")
		if endpoint == "" {
			log.Info("reranking disabled", slog.String("reason", "RERANK_ENDPOINT not set"))
		} else {
			scorer, err := reranker.NewTEIScorer(&reranker.TEIConfig{
				BaseURL: endpoint,
				APIKey:  os.Getenv("RERANK_API_KEY"),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to initialise reranker: %w", err)
			}
			rerank, err = rag.NewCrossEncoderReranker(scorer)
			if err != nil {
				return nil, fmt.Errorf("failed to initialise reranker: %w", err)
			}
			log.Info("reranking enabled",
				slog.String("endpoint", endpoint),
				slog.String("model", getEnvOrDefault("RERANK_MODEL", reranker.DefaultModel)),
			)
		}
	} else {
		log.Info("reranking disabled", slog.String("reason", "RERANK_ENABLED=false"))
	}

	// The pipeline needs a Cache unconditionally; the no-op stands in when
	// caching is off. The server's cache endpoints get nil instead so stats
	// omit the cache section entirely.
	var pipeCache cache.Cache = cache.Nop{}
	var statsCache cache.Cache
	if getEnvOrDefault("CACHE_ENABLED", "true") != "false" {
		sc, err := cache.New(emb, cache.Config{
			Threshold: getEnvFloat("CACHE_THRESHOLD", 0),
			TTL:       time.Duration(getEnvInt("CACHE_TTL_SECONDS", 0)) * time.Second,
			MaxSize:   getEnvInt("CACHE_MAX_SIZE", 0),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialise semantic cache: %w", err)
		}
		pipeCache = sc
		statsCache = sc
		log.Info("semantic cache enabled")
	} else {
		log.Info("semantic cache disabled", slog.String("reason", "CACHE_ENABLED=false"))
	}

	dbPath := os.Getenv("KNOWLIGO_DB")
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	queryLog, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open query log %s: %w", dbPath, err)
	}
	closers = append(closers, func() { _ = queryLog.Close() })
	log.Info("query log opened", slog.String("path", dbPath))

	gen, err := responder.New(responder.Config{ChatModel: chatModel})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise responder: %w", err)
	}

	// Domain policy travels with the snapshot so serving validates against
	// the same rules the corpus was built under.
	pl, err := pipeline.New(&pipeline.Config{
		Validator: validate.New(validate.Config{
			Domain:          snap.Domain,
			ForbiddenTopics: snap.ForbiddenTopics,
		}),
		Classifier:        intent.NewClassifier(),
		Retriever:         retriever,
		Reranker:          rerank,
		Generator:         gen,
		Cache:             pipeCache,
		QueryLog:          queryLog,
		MaxQueriesPerHour: getEnvInt("MAX_QUERIES_PER_HOUR", 0),
		RerankTopN:        getEnvInt("RERANK_TOP_N", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	ok = true
	return &engine{
		pipeline: pl,
		cache:    statsCache,
		queryLog: queryLog,
		pingers:  pingers,
		close:    closeAll,
	}, nil
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
