package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/knowligo/knowligo-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests/second allowed per IP on
	// rate-limited endpoints when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the per-IP burst capacity when none is configured.
	// A WhatsApp webhook relaying a burst of messages should not be rejected
	// outright.
	defaultRateBurst = 20

	// evictInterval is how often stale visitor entries are swept.
	evictInterval = time.Minute

	// staleAfter is how long an IP can stay idle before its bucket is dropped.
	staleAfter = 5 * time.Minute
)

// visitor tracks the token bucket of one remote IP and when it last made a
// request, so idle entries can be swept.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket limit on the API endpoints. It
// guards the transport against request floods; the per-user hourly query
// quota is a separate check inside the pipeline and keys on user_id, not IP.
type rateLimiter struct {
	// mu protects visitors.
	mu       sync.Mutex
	visitors map[string]*visitor

	rps   rate.Limit
	burst int
	log   *slog.Logger

	// onReject, when non-nil, is invoked once per rejected request. The
	// server hooks the rejection counter metric here.
	onReject func()
}

// newRateLimiter constructs a rateLimiter and starts the background sweep
// goroutine, which exits when the returned stop function is called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}

	stopCh := make(chan struct{})
	go rl.sweepLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// limiterFor returns the token bucket for ip, creating it on first sight,
// and refreshes the IP's last-seen time.
func (rl *rateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// sweepLoop periodically drops visitors idle longer than staleAfter, keeping
// the map bounded no matter how many distinct IPs have called.
func (rl *rateLimiter) sweepLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep removes visitor entries idle longer than staleAfter.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// middleware wraps next with the rate-limit check. Rejected requests get
// 429 with a Retry-After header and a WARN log line.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if !rl.limiterFor(ip).Allow() {
			log := logging.FromContext(r.Context())
			log.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			if rl.onReject != nil {
				rl.onReject()
			}
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote IP with the port stripped. X-Forwarded-For is
// deliberately ignored: the server binds to localhost and anything in that
// header is attacker-controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
