package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blakeyoung81/Curtain-Lights/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(echoRequestIDMiddleware)
	r.Use(s.observeMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodySizeLimitMiddleware)

	// Unauthenticated operational endpoints
	r.Get("/health", s.handleHealth)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}
	r.Get(s.wsPath(), s.handleWebSocket) // auth via ticket, validated in handler

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/ws-ticket", s.handleWSTicket)
			r.Get("/patterns", s.handleListPatterns)
			r.Get("/system", s.handleSystem)
			r.With(s.requirePermission(auth.PermSchedulerRun)).Post("/scheduler/run", s.handleSchedulerRun)

			r.Route("/tenants/{tenantID}", func(r chi.Router) {
				r.Use(s.tenantScopeMiddleware)

				r.With(s.requirePermission(auth.PermCelebrationSubmit)).Post("/celebrations", s.handleSubmitCelebration)
				r.With(s.requirePermission(auth.PermPaymentPush)).Post("/payments", s.handlePayment)
				r.With(s.requirePermission(auth.PermDeviceRead)).Get("/devices", s.handleListDevices)

				r.Route("/devices/{deviceID}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermCelebrationRead)).Get("/celebration", s.handleCelebrationStatus)
					r.With(s.requirePermission(auth.PermCelebrationCancel)).Delete("/celebration", s.handleCancelCelebration)
					r.With(s.requirePermission(auth.PermDeviceTest)).Post("/test", s.handleTestCommand)
				})
			})
		})
	})

	return r
}

// wsPath returns the configured WebSocket path, defaulting to /ws.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
