package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/knowligo/knowligo-go/internal/logging"
	"github.com/knowligo/knowligo-go/internal/pipeline"
)

// handleQuery handles POST /api/query. The request body carries the user ID,
// the question, and optionally prior conversation turns. The response is the
// pipeline's envelope serialized as-is; the HTTP status mirrors the outcome
// (200 answered, 429 over quota, 400 rejected, 500 internal failure) so
// plain HTTP clients can branch without parsing the body.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	s.metrics.queriesInFlight.Inc()
	start := time.Now()
	result := s.processor.Process(r.Context(), pipeline.Request{
		UserID:  req.UserID,
		Query:   req.Message,
		History: req.ConversationHistory,
	})
	elapsed := time.Since(start)
	s.metrics.queriesInFlight.Dec()

	outcome, status := classifyResult(result)
	s.metrics.queriesTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if result.Success {
		lookup := "miss"
		if result.Cached {
			lookup = "hit"
		}
		s.metrics.cacheLookupsTotal.WithLabelValues(lookup).Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Error("query encode error", slog.Any("error", err))
	}
}

// classifyResult maps a pipeline result onto its metrics outcome label and
// HTTP status code.
func classifyResult(res pipeline.Result) (outcome string, status int) {
	switch {
	case res.Success && res.Cached:
		return "cached", http.StatusOK
	case res.Success:
		return "ok", http.StatusOK
	case res.ErrorCode == pipeline.ErrCodeRateLimited:
		return "rate_limited", http.StatusTooManyRequests
	case res.ErrorCode == pipeline.ErrCodeInvalidQuery:
		return "rejected", http.StatusBadRequest
	default:
		return "error", http.StatusInternalServerError
	}
}
