package server

import "github.com/go-chi/chi/v5"

// setupRoutes configures the minimal session/message/event surface
// (§2.6, §5). Everything the reference TUI needs beyond this —
// file browsing, LSP status, formatter control, MCP management,
// sharing, client-tool registration — lives outside this API.
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Delete("/", s.deleteSession)
			r.Post("/message", s.sendMessage)
		})
	})

	r.Get("/agent", s.listAgents)

	// Event streaming (SSE), optionally filtered to one session.
	r.Get("/event", s.allEvents)
}
