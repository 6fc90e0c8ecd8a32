// Package server exposes the monitoring endpoints and manual stage triggers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deusflow/newsroom/internal/logger"
	"github.com/deusflow/newsroom/internal/metrics"
	"github.com/deusflow/newsroom/internal/pipeline"
	"github.com/deusflow/newsroom/internal/ratelimit"
	"github.com/deusflow/newsroom/internal/storage"
)

type Server struct {
	store   *storage.Store
	runner  *pipeline.Runner
	limiter *ratelimit.AIRateLimiter
	metrics *metrics.Metrics
}

// New builds the server. Limiter may be nil.
func New(store *storage.Store, runner *pipeline.Runner, limiter *ratelimit.AIRateLimiter, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.Global
	}
	return &Server{store: store, runner: runner, limiter: limiter, metrics: m}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/metrics", s.metricsHandler)
	r.Post("/api/stages/{stage}", s.triggerHandler)
	return r
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting monitoring server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if !s.metrics.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}
	if err := s.store.Ping(r.Context()); err != nil {
		status = "database unavailable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"pipeline": s.metrics.GetStats()}
	if s.limiter != nil {
		out["rate_limits"] = s.limiter.GetStats()
	}

	err := s.store.InTx(r.Context(), func(tx *storage.Tx) error {
		backlog, err := tx.Stats(r.Context())
		if err != nil {
			return err
		}
		out["backlog"] = backlog
		return nil
	})
	if err != nil {
		logger.Error("failed to read backlog stats", "error", err)
		out["backlog_error"] = err.Error()
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")

	rep, err := s.runner.Trigger(r.Context(), stage)
	switch {
	case errors.Is(err, pipeline.ErrUnknownStage):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, pipeline.ErrStageBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		logger.Error("manual stage run failed", "stage", stage, "error", err)
		s.metrics.SetError(err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
