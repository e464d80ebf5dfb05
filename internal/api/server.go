// Package api exposes the HTTP interface for the color data service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanzolab/colorsync/internal/cache"
	"github.com/sanzolab/colorsync/internal/palette"
	"github.com/sanzolab/colorsync/internal/store"
	"github.com/sanzolab/colorsync/internal/syncer"
	"github.com/sanzolab/colorsync/internal/telemetry"
)

// Server wires HTTP handlers to the store, cache and sync orchestrator.
type Server struct {
	router chi.Router
	store  store.Provider
	cache  cache.Store
	syncer *syncer.Orchestrator
	clock  palette.Clock
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	provider store.Provider,
	cacheStore cache.Store,
	orchestrator *syncer.Orchestrator,
	clock palette.Clock,
	logger *zap.Logger,
) *Server {
	s := &Server{
		store:  provider,
		cache:  cacheStore,
		syncer: orchestrator,
		clock:  clock,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/colors", func(r chi.Router) {
			r.Get("/", s.listColors)
			r.Post("/similar", s.similarColors)
			r.Get("/{hex}", s.getColor)
		})
		r.Get("/combinations", s.listCombinations)
		r.Post("/analyze", s.analyzeRoom)
		r.Post("/sync", s.triggerSync)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/status", s.cacheStatus)
			r.Delete("/", s.clearCache)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CombinationCount(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
