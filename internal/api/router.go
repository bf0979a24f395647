package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/provisioning", s.handleProvisioningStatus)

		// The WebSocket authenticates itself (ticket or bearer header)
		r.Get("/bridge/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Post("/provisioning/retry", s.handleProvisioningRetry)

			// Assets come from the bundle, not the provisioned copies.
			r.Post("/bridge/asset", s.handleBridgeAsset)
			r.With(s.requireReady).Post("/bridge/query", s.handleBridgeQuery)
		})
	})

	// Web UI, with SPA fallback to index.html
	if s.ui != nil {
		ui := uiHandler(s.ui)
		r.Handle("/", ui)
		r.Handle("/*", ui)
	}

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"provisioning": s.task.Status().State,
	})
}
