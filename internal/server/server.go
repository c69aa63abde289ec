// Package server exposes the enrichment worker over HTTP: a trigger
// endpoint that runs one batch synchronously, liveness and readiness
// probes, and a table stats endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/internal/pipeline"
	"github.com/sells-group/venue-enrich/internal/store"
)

// Batcher runs one enrichment batch. Satisfied by *pipeline.Runner.
type Batcher interface {
	Run(ctx context.Context, opts pipeline.Options) (model.BatchSummary, error)
}

// Server routes HTTP requests to the batch runner and the store.
type Server struct {
	runner Batcher
	store  store.Store
	driver string
	table  string
}

// New builds a Server over its dependencies. driver and table identify the
// warehouse target echoed by the readiness probe.
func New(runner Batcher, st store.Store, driver, table string) *Server {
	return &Server{runner: runner, store: st, driver: driver, table: table}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/", s.handleRun)
	r.Get("/ping", s.handlePing)
	r.Get("/ready", s.handleReady)
	r.Get("/stats", s.handleStats)

	return r
}

// handleRun triggers one batch and reports its summary. A batch halted on
// LLM quota maps to 429, one halted on the soft time budget maps to 504;
// both still carry the partial summary so callers see how far it got.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	opts, err := parseOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.runner.Run(r.Context(), opts)
	if err != nil {
		zap.L().Error("server: batch run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "batch run failed")
		return
	}

	status := http.StatusOK
	switch summary.Halted {
	case pipeline.HaltQuota:
		status = http.StatusTooManyRequests
	case pipeline.HaltBudget:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, summary)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks that the warehouse answers before reporting ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("server: readiness ping failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"driver": s.driver,
		"table":  s.table,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		zap.L().Error("server: stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseOptions(r *http.Request) (pipeline.Options, error) {
	var opts pipeline.Options
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, errBadParam("limit", raw)
		}
		opts.Limit = n
	}
	opts.Dry = boolParam(q.Get("dry"))
	opts.Backfill = boolParam(q.Get("backfill"))
	opts.Quality = boolParam(q.Get("quality"))
	return opts, nil
}

func boolParam(raw string) bool {
	return raw == "1" || raw == "true" || raw == "yes"
}

type paramError struct {
	name, value string
}

func (e paramError) Error() string {
	return "invalid " + e.name + " parameter: " + e.value
}

func errBadParam(name, value string) error {
	return paramError{name: name, value: value}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
