// Package tracing wires the optional Langfuse integration. When enabled,
// every model and embedding call made while answering a query is traced
// through eino's global callback mechanism, which is how per-query latency
// and token spend get attributed to pipeline stages.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is used when LANGFUSE_HOST is unset (a local Langfuse devbox).
const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse callback handler from LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY. Tracing is strictly opt-in: with either key missing
// it reports false and the caller skips callback registration entirely.
// The returned flush func drains buffered traces and must run before exit.
func Setup() (callbacks.Handler, func(), bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flush := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	return handler, flush, true
}
