package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/knowligo/knowligo-go/internal/logging"
)

// probeTimeout caps each dependency probe during a readiness check. Kept
// short so /api/ready answers quickly when a dependency hangs rather than
// refuses.
const probeTimeout = 5 * time.Second

// Pinger is implemented by every dependency the engine cannot answer
// without: the chat model, the embedder, and Qdrant when configured. Ping
// returns nil when the dependency is reachable and a descriptive error
// otherwise. Implementations must be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name is the label shown in readiness responses ("groq", "embedder",
	// "qdrant").
	Name() string
}

// readyCheck is the per-dependency result of one readiness probe.
type readyCheck struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`

	// Error holds the failure reason when OK is false, empty on success.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Every registered Pinger is probed
// under its own short timeout; the endpoint returns 200 only when all
// dependencies respond, 503 otherwise. Orchestrators use this to hold
// traffic until the model and vector backends are actually reachable,
// whereas /api/health only proves the process is up.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	checks, ready := s.probeAll(r.Context(), log)

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(readyResponse{Ready: ready, Checks: checks}); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}

// probeAll runs every registered dependency probe in order and reports the
// per-dependency outcomes plus whether all of them passed. With no pingers
// registered the server is trivially ready.
func (s *Server) probeAll(ctx context.Context, log *slog.Logger) ([]readyCheck, bool) {
	checks := make([]readyCheck, 0, len(s.pingers))
	ready := true

	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Ping(probeCtx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		checks = append(checks, check)
	}
	return checks, ready
}
