package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/knowligo/knowligo-go/internal/logging"
)

// handleStats handles GET /api/stats. It combines the persistent query log
// aggregates with a snapshot of the semantic cache counters. Sections whose
// backing component is not configured are omitted rather than zero-filled.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var resp statsResponse

	if s.cfg.QueryLog != nil {
		qs, err := s.cfg.QueryLog.Stats(r.Context())
		if err != nil {
			log.Error("stats: query log aggregation failed", slog.Any("error", err))
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		resp.Queries = &qs
	}

	if s.cfg.Cache != nil {
		cs := s.cfg.Cache.Stats()
		resp.Cache = &cs
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("stats encode error", slog.Any("error", err))
	}
}

// handleCacheClear handles POST /api/cache/clear. It empties the semantic
// cache and resets its counters. With caching disabled it reports
// cleared:false rather than failing, so operators can call it unconditionally.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := cacheClearResponse{}
	if s.cfg.Cache != nil {
		s.cfg.Cache.Clear()
		resp.Cleared = true
		log.Info("semantic cache cleared")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("cache clear encode error", slog.Any("error", err))
	}
}
