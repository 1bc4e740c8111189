package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/knowligo/knowligo-go/internal/logging"
)

// authMiddleware enforces Bearer-token authentication on the API routes.
// With an empty apiKey the middleware is a no-op: auth is disabled and the
// server logs a single startup warning instead of one per request.
//
// Protected routes must send:
//
//	Authorization: Bearer <apiKey>
//
// Missing or wrong tokens get 401 with a WWW-Authenticate challenge. Token
// comparison is constant-time, and presented token values are never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	key := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := bearerToken(r)
		switch {
		case token == "":
			log.Warn("auth: missing Authorization header", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="knowligo"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)

		case subtle.ConstantTimeCompare([]byte(token), key) != 1:
			log.Warn("auth: invalid token", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="knowligo" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken pulls the token out of an "Authorization: Bearer <token>"
// header. The scheme match is case-insensitive per RFC 6750; a missing or
// non-Bearer header yields the empty string.
func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
