package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds dependency checks made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/counter", func(r chi.Router) {
			r.Get("/state", s.handleGetState)
			r.Get("/history", s.handleGetHistory)
			r.Post("/reset", s.handleReset)
			r.Get("/queue", s.handleQueue)
			r.Get("/enabled", s.handleGetEnabled)
			r.Put("/enabled", s.handleSetEnabled)
		})
	})

	return r
}

// handleHealth returns the server health status. Dependency and serial
// problems degrade the report but never fail the request.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"polling": s.flag.IsFeatureEnabled(r.Context()),
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := []struct {
		name    string
		checker HealthChecker
	}{
		{"database", s.database},
		{"mqtt", s.mqtt},
		{"influxdb", s.influx},
	}
	for _, c := range checks {
		if c.checker == nil {
			continue
		}
		if err := c.checker.HealthCheck(ctx); err != nil {
			resp["status"] = "degraded"
			resp[c.name] = err.Error()
		} else {
			resp[c.name] = "connected"
		}
	}

	if s.codec != nil {
		stats := s.codec.Stats()
		if !stats.Open {
			resp["status"] = "degraded"
		}
		resp["serial"] = stats
	}

	writeJSON(w, http.StatusOK, resp)
}
