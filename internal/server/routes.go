package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/iaeternum/datagate/internal/server/handlers"
)

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(deps Deps) {
	s.router.Get("/health", deps.Health.HealthHandler)
	s.router.Get("/version", handlers.VersionHandler)

	s.router.Route("/agent", func(r chi.Router) {
		r.Get("/pricing", deps.Agent.Pricing)
		r.Get("/tier/{wallet}", deps.Agent.Tier)
		r.Get("/records/{id}", deps.Agent.Record)
	})
}
