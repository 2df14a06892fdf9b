package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/audit", s.handleListAuditLogs)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "read-only endpoint")
	})

	return r
}

// healthCheckTimeout bounds each dependency check of GET /api/v1/health.
const healthCheckTimeout = 2 * time.Second

// Health is the body of GET /api/v1/health. Checks holds "ok" or the error
// of each optional dependency that is enabled.
type Health struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	BusConnected bool              `json:"bus_connected"`
	Loop         string            `json:"loop"`
	Checks       map[string]string `json:"checks,omitempty"`
}

// handleHealth reports ok while the bus connection is up, the loop has not
// stopped and every dependency check passes, and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:       "ok",
		Version:      s.version,
		BusConnected: s.bus != nil && s.bus.Connected(),
		Loop:         s.loop.Stats().State,
	}

	healthy := h.BusConnected && h.Loop != "stopped"
	if len(s.checks) > 0 {
		h.Checks = make(map[string]string, len(s.checks))
	}
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			h.Checks[name] = err.Error()
			healthy = false
			continue
		}
		h.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		h.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
