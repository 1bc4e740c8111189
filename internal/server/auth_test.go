package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestAuthMiddleware covers the token outcomes on a protected route.
func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		apiKey string
		header string
		want   int
	}{
		{"auth disabled passes through", "", "", http.StatusOK},
		{"missing header rejected", "secret", "", http.StatusUnauthorized},
		{"wrong token rejected", "secret", "Bearer wrong-token", http.StatusUnauthorized},
		{"basic auth rejected", "secret", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"correct token accepted", "secret", "Bearer secret", http.StatusOK},
		{"lowercase scheme accepted", "secret", "bearer secret", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := authMiddleware(tc.apiKey, okHandler)
			req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("status: got %d, want %d", w.Code, tc.want)
			}
		})
	}
}

// TestAuthMiddleware_Challenge verifies both 401 variants carry the Bearer
// challenge so API clients can tell auth failures from other 4xx responses.
func TestAuthMiddleware_Challenge(t *testing.T) {
	t.Parallel()

	h := authMiddleware("secret", okHandler)

	noHeader := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, noHeader)
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate on 401 without header")
	}

	badToken := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	badToken.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, badToken)
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("missing WWW-Authenticate on 401 with wrong token")
	}
}

// TestBearerToken verifies the header extraction helper.
func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header=%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
