// Package server exposes a minimal headless HTTP+SSE surface over the
// session store and agent loop: create/list/load/delete a session, send
// one message and get the reply, and stream the event bus over SSE for
// clients that want to watch progress live (§2.6, §5).
//
// It deliberately does not reimplement the reference TUI's full control
// surface (LSP status, formatter control, client-tool registration,
// sharing, MCP OAuth) — those are out of scope for a headless API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/oxide-run/oxide/internal/agent"
	"github.com/oxide-run/oxide/internal/session"
	"github.com/oxide-run/oxide/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: SSE streams stay open
	}
}

// Server is the headless HTTP+SSE server.
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	appConfig *types.Config
	store     *session.Store
	loop      *session.Loop
	agents    *agent.Registry
	defAgent  string
}

// New wires a Server around an already-constructed session store and
// agent loop (see cmd/oxide's "serve" command for the standard
// bootstrap sequence shared with the interactive REPL).
func New(cfg *Config, appConfig *types.Config, store *session.Store, loop *session.Loop, agents *agent.Registry, defaultAgent string) *Server {
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		appConfig: appConfig,
		store:     store,
		loop:      loop,
		agents:    agents,
		defAgent:  defaultAgent,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
