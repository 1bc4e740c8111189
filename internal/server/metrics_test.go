package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knowligo/knowligo-go/internal/pipeline"
)

// metricsServer returns a Server wired to its own registry, keeping
// prometheus.DefaultRegisterer clean across tests.
func metricsServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		processor: &fakeProcessor{},
		cfg: &Config{
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

// counterValue extracts a counter with one matching label pair from gathered
// metric families, returning -1 when absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointServesTextFormat(t *testing.T) {
	t.Parallel()
	_, reg := metricsServer(t)

	ts := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(ts.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, ts.URL+"/metrics", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type: got %q, want text/plain exposition format", ct)
	}
}

func Test_Metrics_QueryOutcomeCounted(t *testing.T) {
	t.Parallel()
	s, reg := metricsServer(t)
	s.processor = &fakeProcessor{result: pipeline.Result{Success: true, Response: "ok"}}

	w := postQuery(t, s, `{"user_id":"u1","message":"¿qué planes tienen?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if got := counterValue(t, reg, "knowligo_query_requests_total", "outcome", "ok"); got != 1 {
		t.Errorf("query_requests_total{outcome=ok}: got %v, want 1", got)
	}
	if got := counterValue(t, reg, "knowligo_cache_lookups_total", "result", "miss"); got != 1 {
		t.Errorf("cache_lookups_total{result=miss}: got %v, want 1", got)
	}
}

func Test_Metrics_CacheHitCounted(t *testing.T) {
	t.Parallel()
	s, reg := metricsServer(t)
	s.processor = &fakeProcessor{result: pipeline.Result{Success: true, Response: "ok", Cached: true}}

	w := postQuery(t, s, `{"user_id":"u1","message":"qué planes ofrecen?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if got := counterValue(t, reg, "knowligo_query_requests_total", "outcome", "cached"); got != 1 {
		t.Errorf("query_requests_total{outcome=cached}: got %v, want 1", got)
	}
	if got := counterValue(t, reg, "knowligo_cache_lookups_total", "result", "hit"); got != 1 {
		t.Errorf("cache_lookups_total{result=hit}: got %v, want 1", got)
	}
}

func Test_Metrics_ErrorOutcomeCounted(t *testing.T) {
	t.Parallel()
	s, reg := metricsServer(t)
	s.processor = &fakeProcessor{result: pipeline.Result{
		Success:   false,
		ErrorCode: pipeline.ErrCodeInternal,
	}}

	w := postQuery(t, s, `{"user_id":"u1","message":"hola"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}

	if got := counterValue(t, reg, "knowligo_query_requests_total", "outcome", "error"); got != 1 {
		t.Errorf("query_requests_total{outcome=error}: got %v, want 1", got)
	}
	// Failed queries never touch the cache counters.
	if got := counterValue(t, reg, "knowligo_cache_lookups_total", "result", "miss"); got != -1 {
		t.Errorf("cache_lookups_total should be absent, got %v", got)
	}
}

func Test_Metrics_InFlightGaugeSettlesAtZero(t *testing.T) {
	t.Parallel()
	s, reg := metricsServer(t)
	s.processor = &fakeProcessor{result: pipeline.Result{Success: true}}

	postQuery(t, s, `{"user_id":"u1","message":"hola"}`)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == "knowligo_query_in_flight" {
			if v := mf.GetMetric()[0].GetGauge().GetValue(); v != 0 {
				t.Errorf("in_flight after completion: got %v, want 0", v)
			}
			return
		}
	}
	t.Error("knowligo_query_in_flight not found in gathered metrics")
}
