// Package api exposes the pipeline coordinator and read models over
// HTTP. Handlers stay thin: decode, validate, call the coordinator or
// store, map sentinel errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/monitoring"
	"github.com/promptwatch/visibility/internal/pipeline"
	"github.com/promptwatch/visibility/internal/store"
)

// Server wires the HTTP surface to the coordinator, store, and
// metrics collector.
type Server struct {
	coord     *pipeline.Coordinator
	store     store.Store
	collector *monitoring.Collector
	validate  *validator.Validate
	lookback  int
}

// NewServer builds the HTTP surface. The monitoring config only feeds
// the metrics endpoint's lookback window.
func NewServer(coord *pipeline.Coordinator, st store.Store, collector *monitoring.Collector, cfg config.MonitoringConfig) *Server {
	return &Server{
		coord:     coord,
		store:     st,
		collector: collector,
		validate:  validator.New(),
		lookback:  cfg.LookbackHours,
	}
}

// Router assembles the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/pipelines", s.handleStartPipeline)
		r.Get("/pipelines/{pipelineID}", s.handlePipelineStatus)
		r.Delete("/pipelines/{pipelineID}", s.handleCancelPipeline)
		r.Get("/brands/{brandID}/score", s.handleLatestScore)
		r.Get("/reports/{reportID}", s.handleGetReport)
		r.Get("/metrics", s.handleMetrics)
	})
	return r
}

// requestLogger logs one line per request through the global zap
// logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// respondStoreError maps lookup misses to 404 and everything else to
// 500 without leaking internals.
func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("api: request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal error")
}
