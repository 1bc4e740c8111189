// Package config layers an optional YAML file underneath the environment:
// each value the file provides is exported as the matching env var, but only
// when that var is not already set. Env vars therefore always win, and the
// rest of the codebase keeps reading plain os.Getenv.
//
// The file is searched for in this order:
//  1. --config CLI flag (explicit path)
//  2. KNOWLIGO_CONFIG environment variable
//  3. ~/.knowligo/config.yaml
//  4. ./knowligo.yaml
//
// No file found is not an error; everything then runs from env vars alone.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config mirrors the YAML file layout. Section and field names line up
// with the env vars they seed (lowercased, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider used for retrieval and
	// the semantic cache.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Reranker configures the cross-encoder reranking stage.
	Reranker RerankerConfig `yaml:"reranker"`

	// Retrieval configures hybrid retrieval tuning knobs.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Cache configures the semantic answer cache.
	Cache CacheConfig `yaml:"cache"`

	// Limits configures per-user usage limits.
	Limits LimitsConfig `yaml:"limits"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Knowledge configures the ingested knowledge base locations.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Store configures query log persistence.
	Store StoreConfig `yaml:"store"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, groq, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens caps the generated response length.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls sampling randomness, 0.0 to 1.0.
	Temperature float32 `yaml:"temperature"`

	// Per-backend sections; only the one Provider selects is read.
	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Groq    GroqConfig    `yaml:"groq"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama server base URL.
	Host string `yaml:"host"`
	// Model names the chat model to run.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey authenticates against OpenAI. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model names the chat model.
	Model string `yaml:"model"`
}

// GroqConfig holds Groq provider settings.
type GroqConfig struct {
	// APIKey is the Groq API key. Prefer env var GROQ_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Groq model name.
	Model string `yaml:"model"`
	// BaseURL overrides the Groq OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey authenticates against the resource. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the resource URL, https://<name>.openai.azure.com.
	Endpoint string `yaml:"endpoint"`
	// Deployment names the deployed model.
	Deployment string `yaml:"deployment"`
	// APIVersion pins the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region Bedrock runs in.
	Region string `yaml:"region"`
	// ModelID identifies the Bedrock model.
	ModelID string `yaml:"model_id"`
	// Endpoint overrides the OpenAI-compatible Bedrock runtime endpoint.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates against Bedrock. Prefer env var BEDROCK_API_KEY.
	APIKey string `yaml:"api_key"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey authenticates against Google AI. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model names the Gemini model.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model names the embedding model.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey authenticates the embedding calls. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint overrides the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// RerankerConfig holds cross-encoder reranking settings.
type RerankerConfig struct {
	// Enabled toggles the reranking stage. Unset means enabled.
	Enabled *bool `yaml:"enabled"`
	// TopN is the number of chunks kept after reranking.
	TopN int `yaml:"top_n"`
	// Endpoint is the rerank inference server base URL.
	Endpoint string `yaml:"endpoint"`
	// Model is the cross-encoder model name.
	Model string `yaml:"model"`
	// APIKey is the rerank API key. Prefer env var RERANK_API_KEY.
	APIKey string `yaml:"api_key"`
}

// RetrievalConfig holds hybrid retrieval tuning knobs.
type RetrievalConfig struct {
	// TopK is the number of fused candidates returned per query.
	TopK int `yaml:"top_k"`
	// RRFDampingK is the rank-damping constant in the RRF formula.
	RRFDampingK int `yaml:"rrf_damping_k"`
	// DenseOverfetchFactor multiplies TopK for the per-leg fetch size.
	DenseOverfetchFactor int `yaml:"dense_overfetch_factor"`
}

// CacheConfig holds semantic cache settings.
type CacheConfig struct {
	// Enabled toggles the semantic cache. Unset means enabled.
	Enabled *bool `yaml:"enabled"`
	// Threshold is the minimum cosine similarity for a cache hit.
	Threshold float64 `yaml:"threshold"`
	// TTLSeconds is the maximum entry age in seconds.
	TTLSeconds int `yaml:"ttl_seconds"`
	// MaxSize is the maximum number of cached answers.
	MaxSize int `yaml:"max_size"`
}

// LimitsConfig holds per-user usage limits.
type LimitsConfig struct {
	// MaxQueriesPerHour is the per-user successful-query quota.
	MaxQueriesPerHour int `yaml:"max_queries_per_hour"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host names the Qdrant server.
	Host string `yaml:"host"`
	// Port is the gRPC port, usually 6334.
	Port int `yaml:"port"`
	// Collection names the collection that holds the knowledge base.
	Collection string `yaml:"collection"`
	// APIKey authenticates against managed clusters. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables transport encryption for the connection.
	TLS bool `yaml:"tls"`
}

// KnowledgeConfig holds knowledge base locations.
type KnowledgeConfig struct {
	// DocsDir is the directory of markdown sources to ingest.
	DocsDir string `yaml:"docs_dir"`
	// Snapshot is the path of the ingested snapshot file served at runtime.
	Snapshot string `yaml:"snapshot"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind.
	Host string `yaml:"host"`
	// Port is the TCP port to listen on.
	Port int `yaml:"port"`
	// APIKey is the Bearer token clients must present. Prefer env var KNOWLIGO_API_KEY.
	APIKey string `yaml:"api_key"`
}

// StoreConfig holds query log persistence settings.
type StoreConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format selects the output encoding: json (default) or text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey identifies the Langfuse project. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey authenticates trace uploads. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host overrides the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping pairs each env var the file can seed with the accessor that
// reads its value out of the parsed YAML. Accessors return "" for unset
// fields, which Load skips.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return floatStr(float64(c.Model.Temperature), 32) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"GROQ_API_KEY", func(c *Config) string { return c.Model.Groq.APIKey }},
	{"GROQ_MODEL", func(c *Config) string { return c.Model.Groq.Model }},
	{"GROQ_BASE_URL", func(c *Config) string { return c.Model.Groq.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"BEDROCK_ENDPOINT", func(c *Config) string { return c.Model.Bedrock.Endpoint }},
	{"BEDROCK_API_KEY", func(c *Config) string { return c.Model.Bedrock.APIKey }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"RERANK_ENABLED", func(c *Config) string { return boolPtrStr(c.Reranker.Enabled) }},
	{"RERANK_TOP_N", func(c *Config) string { return intStr(c.Reranker.TopN) }},
	{"RERANK_ENDPOINT", func(c *Config) string { return c.Reranker.Endpoint }},
	{"RERANK_MODEL", func(c *Config) string { return c.Reranker.Model }},
	{"RERANK_API_KEY", func(c *Config) string { return c.Reranker.APIKey }},
	{"TOP_K_RETRIEVAL", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RRF_DAMPING_K", func(c *Config) string { return intStr(c.Retrieval.RRFDampingK) }},
	{"DENSE_OVERFETCH_FACTOR", func(c *Config) string { return intStr(c.Retrieval.DenseOverfetchFactor) }},
	{"CACHE_ENABLED", func(c *Config) string { return boolPtrStr(c.Cache.Enabled) }},
	{"CACHE_THRESHOLD", func(c *Config) string { return floatStr(c.Cache.Threshold, 64) }},
	{"CACHE_TTL_SECONDS", func(c *Config) string { return intStr(c.Cache.TTLSeconds) }},
	{"CACHE_MAX_SIZE", func(c *Config) string { return intStr(c.Cache.MaxSize) }},
	{"MAX_QUERIES_PER_HOUR", func(c *Config) string { return intStr(c.Limits.MaxQueriesPerHour) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"KNOWLIGO_DOCS", func(c *Config) string { return c.Knowledge.DocsDir }},
	{"KNOWLIGO_SNAPSHOT", func(c *Config) string { return c.Knowledge.Snapshot }},
	{"KNOWLIGO_HOST", func(c *Config) string { return c.Server.Host }},
	{"KNOWLIGO_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"KNOWLIGO_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"KNOWLIGO_DB", func(c *Config) string { return c.Store.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load locates and parses the YAML config file, then exports its values
// into the environment. Variables that are already set are left alone.
// It returns the path of the file it loaded, or "" when there was none.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no config file found, running from env vars alone")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		if os.Getenv(m.envKey) != "" {
			continue // an explicit env var beats the file
		}
		if v := m.value(&cfg); v != "" {
			os.Setenv(m.envKey, v)
			applied++
		}
	}

	log.Info("config: loaded file",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file candidate that exists.
// An explicit path short-circuits the search entirely.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		return ""
	}

	candidates := []string{os.Getenv("KNOWLIGO_CONFIG")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".knowligo", "config.yaml"))
	}
	candidates = append(candidates, "knowligo.yaml")

	for _, p := range candidates {
		if p != "" && fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float to its shortest decimal form, returning "" for
// zero values. bits is 32 or 64, matching the precision of the source field.
func floatStr(v float64, bits int) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, bits)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if v {
		return "true"
	}
	return ""
}

// boolPtrStr converts an optional bool to string, returning "" when unset.
// Unlike boolStr it can express an explicit false, which is how YAML turns
// off a feature that defaults to enabled.
func boolPtrStr(v *bool) string {
	if v == nil {
		return ""
	}
	if *v {
		return "true"
	}
	return "false"
}
