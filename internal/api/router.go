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
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public: liveness probes carry no token.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/pucks", func(r chi.Router) {
				r.Get("/", s.handleListPucks)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPuck)
					r.Patch("/", s.handleRenamePuck)
					r.Delete("/", s.handleDeletePuck)
					r.Post("/discover", s.handleDiscoverPuck)
					r.Get("/triggers", s.handleListTriggers)
					r.Post("/triggers/{trigger}/fire", s.handleFireTrigger)
					r.Get("/rules", s.handleListRules)
					r.Post("/rules", s.handleConfigureRule)
				})
			})

			r.Route("/rules/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Delete("/", s.handleDeleteRule)
			})

			r.Route("/candidates", func(r chi.Router) {
				r.Get("/", s.handleListCandidates)
				r.Post("/{address}/accept", s.handleAcceptCandidate)
				r.Delete("/{address}", s.handleDismissCandidate)
			})
			r.Post("/sightings", s.handleSighting)

			r.Get("/actuators", s.handleListActuators)
			r.Get("/sessions", s.handleListSessions)
			r.Post("/discovery/refresh", s.handleRefresh)
		})
	})

	return r
}
