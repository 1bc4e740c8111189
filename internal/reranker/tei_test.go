package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func Test_TEIScorer_RestoresInputOrder(t *testing.T) {
	t.Parallel()

	var gotQuery string
	var gotTexts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rerank" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req teiRerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotQuery = req.Query
		gotTexts = req.Texts

		// Score-descending order, as the server returns it.
		results := []teiRerankResult{
			{Index: 2, Score: 9.1},
			{Index: 0, Score: 4.5},
			{Index: 1, Score: -0.3},
		}
		if err := json.NewEncoder(w).Encode(results); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer srv.Close()

	s, err := NewTEIScorer(&TEIConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTEIScorer: %v", err)
	}

	texts := []string{"plan básico", "horario de soporte", "plan profesional"}
	scores, err := s.Score(context.Background(), "cuánto cuesta el plan", texts)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	want := []float64{4.5, -0.3, 9.1}
	if len(scores) != len(want) {
		t.Fatalf("got %d scores, want %d", len(scores), len(want))
	}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}

	if gotQuery != "cuánto cuesta el plan" {
		t.Errorf("server saw query %q", gotQuery)
	}
	if len(gotTexts) != 3 || gotTexts[2] != "plan profesional" {
		t.Errorf("server saw texts %v", gotTexts)
	}
}

func Test_TEIScorer_EmptyInputSkipsRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	}))
	defer srv.Close()

	s, err := NewTEIScorer(&TEIConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTEIScorer: %v", err)
	}
	scores, err := s.Score(context.Background(), "plan", nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 0 {
		t.Errorf("got %d scores, want none", len(scores))
	}
}

func Test_TEIScorer_ServerErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(teiError{Error: "model is warming up"})
	}))
	defer srv.Close()

	s, err := NewTEIScorer(&TEIConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTEIScorer: %v", err)
	}
	_, err = s.Score(context.Background(), "plan", []string{"texto"})
	if err == nil {
		t.Fatal("want error from failing server, got nil")
	}
}

func Test_TEIScorer_ScoreCountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]teiRerankResult{{Index: 0, Score: 1}})
	}))
	defer srv.Close()

	s, err := NewTEIScorer(&TEIConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewTEIScorer: %v", err)
	}
	if _, err := s.Score(context.Background(), "plan", []string{"a", "b"}); err == nil {
		t.Fatal("want error on score count mismatch, got nil")
	}
}

func Test_TEIScorer_BearerAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q, want Bearer sekrit", got)
		}
		_ = json.NewEncoder(w).Encode([]teiRerankResult{{Index: 0, Score: 1}})
	}))
	defer srv.Close()

	s, err := NewTEIScorer(&TEIConfig{BaseURL: srv.URL, APIKey: "sekrit"})
	if err != nil {
		t.Fatalf("NewTEIScorer: %v", err)
	}
	if _, err := s.Score(context.Background(), "plan", []string{"texto"}); err != nil {
		t.Fatalf("Score: %v", err)
	}
}
