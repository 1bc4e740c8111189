// Package audit records what each CLI invocation ran with: the command
// name, the config file that was applied, and the operational environment
// variables that shaped the run. Credential values never reach the log;
// they are collapsed to "set" or "unset" before the entry is written.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// envVar is one environment variable the audit entry reports. Secret
// variables are reported as presence only.
type envVar struct {
	name   string
	secret bool
}

// attr renders the variable as a log attribute, redacting secrets.
func (e envVar) attr() slog.Attr {
	v := os.Getenv(e.name)
	if e.secret {
		return slog.String(e.name, setOrUnset(v))
	}
	return slog.String(e.name, orUnset(v))
}

// auditedEnv is the ordered list of variables reported on every command
// start, grouped by concern.
var auditedEnv = []envVar{
	// Model provider selection and credentials.
	{name: "MODEL_PROVIDER"},
	{name: "OLLAMA_HOST"},
	{name: "OLLAMA_MODEL"},
	{name: "OPENAI_API_KEY", secret: true},
	{name: "OPENAI_MODEL"},
	{name: "GROQ_API_KEY", secret: true},
	{name: "GROQ_MODEL"},
	{name: "AZURE_OPENAI_API_KEY", secret: true},
	{name: "AZURE_OPENAI_ENDPOINT"},
	{name: "AZURE_OPENAI_DEPLOYMENT"},
	{name: "GOOGLE_API_KEY", secret: true},
	{name: "GEMINI_MODEL"},
	{name: "AWS_REGION"},
	{name: "BEDROCK_MODEL_ID"},
	{name: "BEDROCK_API_KEY", secret: true},

	// Embeddings and reranking.
	{name: "EMBEDDING_PROVIDER"},
	{name: "EMBEDDING_MODEL"},
	{name: "EMBEDDING_API_KEY", secret: true},
	{name: "RERANK_ENABLED"},
	{name: "RERANK_ENDPOINT"},
	{name: "RERANK_MODEL"},
	{name: "RERANK_API_KEY", secret: true},
	{name: "RERANK_TOP_N"},

	// Retrieval tuning.
	{name: "TOP_K_RETRIEVAL"},
	{name: "DENSE_OVERFETCH_FACTOR"},
	{name: "RRF_DAMPING_K"},

	// Cache and quota.
	{name: "CACHE_ENABLED"},
	{name: "CACHE_THRESHOLD"},
	{name: "CACHE_TTL_SECONDS"},
	{name: "CACHE_MAX_SIZE"},
	{name: "MAX_QUERIES_PER_HOUR"},

	// Vector store and local storage.
	{name: "QDRANT_HOST"},
	{name: "QDRANT_PORT"},
	{name: "QDRANT_COLLECTION"},
	{name: "QDRANT_API_KEY", secret: true},
	{name: "KNOWLIGO_DOCS"},
	{name: "KNOWLIGO_SNAPSHOT"},
	{name: "KNOWLIGO_DB"},
	{name: "KNOWLIGO_API_KEY", secret: true},

	// Logging and tracing.
	{name: "LOG_LEVEL"},
	{name: "LOG_FORMAT"},
	{name: "LANGFUSE_PUBLIC_KEY", secret: true},
	{name: "LANGFUSE_SECRET_KEY", secret: true},
}

// secretEnv maps variable names to their secret flag. It is derived from
// auditedEnv, seeded with AWS session credentials that SanitiseKey must
// still redact even though the audit entry never reports them.
var secretEnv = func() map[string]bool {
	m := map[string]bool{
		"AWS_SECRET_ACCESS_KEY": true,
		"AWS_SESSION_TOKEN":     true,
	}
	for _, e := range auditedEnv {
		if e.secret {
			m[e.name] = true
		}
	}
	return m
}()

// LogCommandStart writes one structured entry describing a command
// invocation: the command name, which config file was applied, and the
// audited environment with secrets redacted.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedEnv)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", displayPath(configPath)),
	)
	for _, e := range auditedEnv {
		attrs = append(attrs, e.attr())
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns value rendered the way the audit entry would render
// it: secrets collapse to "set"/"unset", everything else passes through
// with the empty string shown as "unset".
func SanitiseKey(key, value string) string {
	if secretEnv[key] {
		return setOrUnset(value)
	}
	return orUnset(value)
}

func setOrUnset(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

func orUnset(v string) string {
	if v == "" {
		return "unset"
	}
	return v
}

// displayPath renders the config path for logging: empty becomes "none"
// and the home directory collapses to "~" so entries do not leak the
// operating user.
func displayPath(p string) string {
	if p == "" {
		return "none"
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(p, home) {
		return "~" + strings.TrimPrefix(p, home)
	}
	return p
}
