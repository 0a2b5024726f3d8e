package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Interface presets
	r.Get("/chat/{preset}", s.openPreset)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.listSessions)
			r.Post("/", s.createSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Post("/messages", s.sendMessage)
				r.Get("/history", s.getHistory)
				r.Post("/export", s.exportSession)
			})
		})

		r.Get("/download/{filename}", s.downloadExport)
		r.Get("/prompts", s.listPrompts)
		r.Get("/welcome", s.getWelcome)

		// Event streaming (SSE)
		r.Get("/events", s.events)
	})
}
