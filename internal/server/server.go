// Package server implements the HTTP server that exposes the knowligo query
// pipeline via a REST API, along with health, readiness, stats, and
// Prometheus metrics endpoints.
// The server is started by the `knowligo serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New constructs a Server around the provided query processor and config.
func New(processor queryProcessor, cfg *Config) (*Server, error) {
	if processor == nil {
		return nil, fmt.Errorf("server: query processor must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full retrieval-and-generation round trip.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	registry := cfg.MetricsRegistry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := cfg.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		processor: processor,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(registry),
	}

	if cfg.Cache != nil {
		// Sampled at scrape time rather than tracked on every mutation.
		promauto.With(registry).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "knowligo",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Live entries in the semantic cache.",
		}, func() float64 { return float64(cfg.Cache.Stats().Entries) })
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API authentication disabled (no API key configured)")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	rl.onReject = s.metrics.httpRejectedTotal.Inc
	s.stopRL = stopRL

	api := http.NewServeMux()
	api.HandleFunc("POST /api/query", s.handleQuery)
	api.HandleFunc("GET /api/stats", s.handleStats)
	api.HandleFunc("POST /api/cache/clear", s.handleCacheClear)

	mux := http.NewServeMux()
	// Health, readiness and metrics stay unauthenticated so orchestrators
	// and scrapers can reach them without credentials.
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/api/", authMiddleware(cfg.APIKey, rl.middleware(api)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.httpMetrics(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start serves HTTP until ctx is cancelled, then drains in-flight requests
// for up to ShutdownTimeout before returning.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("knowligo server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}

// handleHealth answers the liveness probe. It reports only that the process
// is up; dependency state lives in handleReady.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
