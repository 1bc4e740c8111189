package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// writeConfig drops YAML content into a temp dir and returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// clearEnv unsets keys for the duration of the test.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	t.Parallel()

	path, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), slog.Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != "" {
		t.Errorf("path: got %q, want empty for a missing file", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
model:
  provider: groq
  max_tokens: 500
  temperature: 0.3
  groq:
    model: llama-3.3-70b-versatile
embedding:
  provider: ollama
  model: nomic-embed-text
retrieval:
  top_k: 10
  rrf_damping_k: 60
reranker:
  top_n: 5
  endpoint: http://localhost:8081
cache:
  threshold: 0.92
  ttl_seconds: 3600
  max_size: 100
limits:
  max_queries_per_hour: 15
qdrant:
  host: qdrant.internal
  port: 6334
  collection: knowledge
logging:
  level: debug
  format: text
`)

	clearEnv(t,
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "GROQ_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"TOP_K_RETRIEVAL", "RRF_DAMPING_K",
		"RERANK_TOP_N", "RERANK_ENDPOINT",
		"CACHE_THRESHOLD", "CACHE_TTL_SECONDS", "CACHE_MAX_SIZE",
		"MAX_QUERIES_PER_HOUR",
		"QDRANT_HOST", "QDRANT_PORT", "QDRANT_COLLECTION",
		"LOG_LEVEL", "LOG_FORMAT",
	)

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":       "groq",
		"MODEL_MAX_TOKENS":     "500",
		"MODEL_TEMPERATURE":    "0.3",
		"GROQ_MODEL":           "llama-3.3-70b-versatile",
		"EMBEDDING_PROVIDER":   "ollama",
		"EMBEDDING_MODEL":      "nomic-embed-text",
		"TOP_K_RETRIEVAL":      "10",
		"RRF_DAMPING_K":        "60",
		"RERANK_TOP_N":         "5",
		"RERANK_ENDPOINT":      "http://localhost:8081",
		"CACHE_THRESHOLD":      "0.92",
		"CACHE_TTL_SECONDS":    "3600",
		"CACHE_MAX_SIZE":       "100",
		"MAX_QUERIES_PER_HOUR": "15",
		"QDRANT_HOST":          "qdrant.internal",
		"QDRANT_PORT":          "6334",
		"QDRANT_COLLECTION":    "knowledge",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	cfgPath := writeConfig(t, "model:\n  provider: ollama\n")

	t.Setenv("MODEL_PROVIDER", "groq")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("MODEL_PROVIDER"); got != "groq" {
		t.Errorf("MODEL_PROVIDER = %q, the pre-set env value should survive", got)
	}
}

func TestLoad_ExplicitFalseIsApplied(t *testing.T) {
	cfgPath := writeConfig(t, "cache:\n  enabled: false\nreranker:\n  enabled: false\n")

	clearEnv(t, "CACHE_ENABLED", "RERANK_ENABLED")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("CACHE_ENABLED"); got != "false" {
		t.Errorf("CACHE_ENABLED: got %q, want %q", got, "false")
	}
	if got := os.Getenv("RERANK_ENABLED"); got != "false" {
		t.Errorf("RERANK_ENABLED: got %q, want %q", got, "false")
	}
}

func TestLoad_UnsetToggleStaysUnset(t *testing.T) {
	cfgPath := writeConfig(t, "cache:\n  threshold: 0.9\n")

	clearEnv(t, "CACHE_ENABLED", "CACHE_THRESHOLD")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, set := os.LookupEnv("CACHE_ENABLED"); set {
		t.Error("CACHE_ENABLED should stay unset when absent from YAML")
	}
	if got := os.Getenv("CACHE_THRESHOLD"); got != "0.9" {
		t.Errorf("CACHE_THRESHOLD: got %q, want %q", got, "0.9")
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("Load accepted malformed YAML")
	}
}

func TestFloatStr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		bits int
		want string
	}{
		{0.0, 32, ""},
		{0.0, 64, ""},
		{float64(float32(0.3)), 32, "0.3"},
		{float64(float32(0.2)), 32, "0.2"},
		{1.0, 32, "1"},
		{0.92, 64, "0.92"},
		{0.875, 64, "0.875"},
		{1.0, 64, "1"},
	}
	for _, tt := range tests {
		if got := floatStr(tt.in, tt.bits); got != tt.want {
			t.Errorf("floatStr(%v, %d) = %q, want %q", tt.in, tt.bits, got, tt.want)
		}
	}
}

func TestBoolPtrStr(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	if got := boolPtrStr(nil); got != "" {
		t.Errorf("boolPtrStr(nil) = %q, want empty", got)
	}
	if got := boolPtrStr(&yes); got != "true" {
		t.Errorf("boolPtrStr(&true) = %q, want %q", got, "true")
	}
	if got := boolPtrStr(&no); got != "false" {
		t.Errorf("boolPtrStr(&false) = %q, want %q", got, "false")
	}
}
