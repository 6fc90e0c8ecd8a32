package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/pipeline"
	"github.com/deusflow/newsroom/internal/ratelimit"
	"github.com/deusflow/newsroom/internal/rss"
	"github.com/deusflow/newsroom/internal/storage"
)

type blockingScanner struct {
	started chan struct{}
	release chan struct{}
}

func (b blockingScanner) Scan(ctx context.Context) (rss.ScanResult, error) {
	close(b.started)
	<-b.release
	return rss.ScanResult{}, nil
}

func newTestServer(t *testing.T, stages pipeline.Stages) (*Server, *metrics.Metrics) {
	t.Helper()
	store, err := storage.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	limiter := ratelimit.NewAIRateLimiter(map[string]int{ratelimit.Groq: 10}, 0)
	return New(store, pipeline.New(stages, m), limiter, m), m
}

func TestHealth(t *testing.T) {
	srv, m := newTestServer(t, pipeline.Stages{})
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	m.SetError("feed exploded")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after an error, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["last_error"] != "feed exploded" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestMetricsIncludesBacklogAndBudgets(t *testing.T) {
	srv, _ := newTestServer(t, pipeline.Stages{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"pipeline", "rate_limits", "backlog"} {
		if _, ok := body[key]; !ok {
			t.Errorf("metrics missing %q", key)
		}
	}
}

func TestTriggerStage(t *testing.T) {
	scanner := blockingScanner{started: make(chan struct{}), release: make(chan struct{})}
	srv, _ := newTestServer(t, pipeline.Stages{Scanner: scanner})
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stages/publish", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown stage: expected 404, got %d", rec.Code)
	}

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stages/scan", nil))
		done <- rec.Code
	}()
	<-scanner.started

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stages/scan", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("busy stage: expected 409, got %d", rec.Code)
	}

	close(scanner.release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first trigger: expected 200, got %d", code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stages/score", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("score without scorer: expected 200, got %d", rec.Code)
	}
}
