package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/knowligo/knowligo-go/internal/cache"
	"github.com/knowligo/knowligo-go/internal/pipeline"
	"github.com/knowligo/knowligo-go/internal/responder"
	"github.com/knowligo/knowligo-go/internal/store"
)

// Config carries everything New needs to assemble the HTTP server. Zero
// fields fall back to the defaults New applies.
type Config struct {
	// Host is the interface to bind; 127.0.0.1 when empty.
	Host string
	// Port is the TCP listen port; 8080 when zero.
	Port int
	// ReadTimeout bounds how long reading one request may take.
	ReadTimeout time.Duration
	// WriteTimeout bounds one response, which must cover a full
	// retrieval-and-generation round trip.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the graceful drain on shutdown.
	ShutdownTimeout time.Duration
	// Logger receives the server's structured logs; slog.Default() when nil.
	Logger *slog.Logger
	// Pingers are the dependency probes behind GET /api/ready, reported in
	// order. With none registered, /api/ready degrades to a liveness check.
	Pingers []Pinger
	// RateLimit is the sustained per-IP request rate (requests/second) on
	// rate-limited endpoints; defaultRateLimit when zero.
	RateLimit float64
	// RateBurst is the per-IP burst allowance; defaultRateBurst when zero.
	RateBurst int
	// APIKey is the Bearer token required on protected /api/* routes. Empty
	// leaves the API unauthenticated for local development, and New warns.
	APIKey string
	// Cache is the semantic cache behind /api/stats and /api/cache/clear.
	// May be nil, in which case those endpoints omit cache data.
	Cache cache.Cache
	// QueryLog is the persistent query log behind /api/stats.
	// May be nil, in which case /api/stats omits query data.
	QueryLog store.QueryLog
	// MetricsRegistry receives the server's Prometheus metric registrations.
	// Defaults to prometheus.DefaultRegisterer if nil.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer if nil.
	MetricsGatherer prometheus.Gatherer
}

// queryProcessor is the interface handleQuery calls to run one query through
// the retrieval pipeline. *pipeline.Pipeline satisfies it; tests inject a fake.
type queryProcessor interface {
	// Process runs req through the full pipeline and returns the response
	// envelope. It never fails; all outcomes are encoded in the Result.
	Process(ctx context.Context, req pipeline.Request) pipeline.Result
}

// Server is the HTTP server that exposes the query pipeline.
type Server struct {
	// processor runs each query; set to the pipeline in production,
	// overridden by a fake in tests.
	processor queryProcessor
	// cfg is the config after defaults were applied.
	cfg *Config
	// httpServer is the configured net/http server.
	httpServer *http.Server
	// log is this instance's logger.
	log *slog.Logger
	// pingers are the readiness probes, in report order.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL terminates the rate limiter's eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// UserID identifies the requesting user (e.g. a phone number).
	UserID string `json:"user_id"`
	// Message is the user's question.
	Message string `json:"message"`
	// ConversationHistory carries prior turns, oldest first. Optional.
	ConversationHistory []responder.Message `json:"conversation_history,omitempty"`
}

// statsResponse is the JSON body for GET /api/stats.
type statsResponse struct {
	// Queries aggregates the persistent query log. Omitted when no query
	// log is configured.
	Queries *store.Stats `json:"queries,omitempty"`
	// Cache is the semantic cache snapshot. Omitted when caching is disabled.
	Cache *cache.Stats `json:"cache,omitempty"`
}

// cacheClearResponse is the JSON body for POST /api/cache/clear.
type cacheClearResponse struct {
	// Cleared is true when a cache was configured and has been emptied.
	Cleared bool `json:"cleared"`
}
