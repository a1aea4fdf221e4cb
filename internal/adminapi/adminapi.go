// Package adminapi is the small HTTP introspection surface around the
// core: stream listing, per-stream status, and a Prometheus scrape
// endpoint (SPEC_FULL.md §3 "Metrics & admin surface"). It is additive
// tooling, not a wire protocol the core depends on — spec §1 still
// excludes "network protocols framing frames" from the core itself.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nsavage/streamcore/internal/manager"
)

// statusTimeout bounds how long a single stream's status query may take
// before the admin surface gives up and returns an error to its caller.
const statusTimeout = 2 * time.Second

// Server is the chi-routed admin HTTP surface.
type Server struct {
	mgr    *manager.Manager
	log    zerolog.Logger
	router chi.Router
}

// New builds a Server listing streams/status from mgr and exposing reg's
// metrics at /metrics, rate limited to requestsPerMinute per client IP
// (matching ManuGH-xg2g's chi + httprate admin-surface stack).
func New(mgr *manager.Manager, reg *prometheus.Registry, requestsPerMinute int, log zerolog.Logger) *Server {
	s := &Server{mgr: mgr, log: log}

	r := chi.NewRouter()
	if requestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(requestsPerMinute, time.Minute))
	}
	r.Get("/streams", s.handleListStreams)
	r.Get("/streams/{key}", s.handleStreamStatus)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"streams": s.mgr.Keys()})
}

func (s *Server) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	actor, ok := s.mgr.Get(key)
	if !ok {
		http.Error(w, "stream not found", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()
	status, err := actor.Status(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("stream", key).Msg("adminapi: status query failed")
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
