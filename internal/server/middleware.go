package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/knowligo/knowligo-go/internal/logging"
)

// requestLogger tags every inbound request with a random request_id, injects
// a child logger carrying it into the request context, and emits one line per
// request with method, path, client IP, status and latency. Handlers pull the
// tagged logger back out with logging.FromContext, so all log output of one
// query shares its request_id.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := base.With(
			slog.String("request_id", newRequestID()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(logging.WithLogger(r.Context(), log))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rec, r)

		log.Info("request",
			slog.String("client", clientIP(r)),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// statusRecorder captures the status code a handler writes so the request
// line can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// newRequestID returns 8 random bytes as a 16-character hex string, with a
// zero-filled fallback if the system randomness source fails.
func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
