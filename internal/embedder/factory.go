package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// Per-backend defaults, used when EMBEDDING_MODEL / EMBEDDING_DIMENSIONS
// are unset. The dimension constants are the output sizes of the default
// models; a non-default model needs EMBEDDING_DIMENSIONS set to match.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultOllamaDimensions = 768
	defaultOpenAIDimensions = 1536
	defaultGeminiDimensions = 768
)

// ResolveBackend reports which backend NewFromEnv will construct:
// EMBEDDING_PROVIDER if set, otherwise MODEL_PROVIDER when that backend
// serves embeddings too, otherwise ollama (groq and bedrock are chat-only).
func ResolveBackend() string {
	if backend := os.Getenv("EMBEDDING_PROVIDER"); backend != "" {
		return backend
	}
	switch inherited := os.Getenv("MODEL_PROVIDER"); inherited {
	case "ollama", "openai", "azure", "gemini":
		return inherited
	default:
		return "ollama"
	}
}

// ResolveModel reports the embedding model NewFromEnv will use for the given
// backend: EMBEDDING_MODEL if set, otherwise the backend's default.
func ResolveModel(backend string) string {
	switch backend {
	case "ollama":
		return getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
	case "gemini":
		return getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel)
	default:
		return getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
	}
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name. Callers that pre-configure a vector store (e.g. Qdrant
// collection creation) should use this rather than hardcoding a value.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs the rag.Embedder selected by the environment.
// A deployment that configures only a chat provider gets a working
// embedder for free: every EMBEDDING_* variable (PROVIDER, MODEL,
// API_KEY, ENDPOINT, DIMENSIONS) is an override, and whatever it leaves
// unset is inherited from the chat provider's own variables or filled
// with the backend default.
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	backend := ResolveBackend()

	switch backend {
	case "ollama":
		host := firstEnv("EMBEDDING_ENDPOINT", "OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "gemini":
		apiKey := firstEnv("EMBEDDING_API_KEY", "GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai, azure, gemini", backend)
	}
}

// firstEnv returns the value of the first key that is set and non-empty.
// Backend-specific variables act as fallbacks behind the EMBEDDING_* ones.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnvOrDefault reads key from the environment, substituting fallback
// when the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt parses key as an integer, substituting fallback when the
// variable is unset, empty, or malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
