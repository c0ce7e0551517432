// Package server assembles the chi router, middleware chain, and HTTP
// lifecycle for the gate.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/server/handlers"
	servermw "github.com/iaeternum/datagate/internal/server/middleware"
)

// Deps carries the wired gate components into the HTTP layer.
type Deps struct {
	Agent  *handlers.Agent
	Health *handlers.HealthManager
	Logger *zap.Logger
}

// Server represents the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *zap.Logger
	host   string
	port   int
}

// New creates a new HTTP server instance with the full middleware chain
// (RequestID early for correlation, Recovery outermost around handlers).
func New(host string, port int, deps Deps) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestLogger(deps.Logger))
	r.Use(servermw.Recovery(deps.Logger))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		servermw.WriteError(w, req, http.StatusNotFound, "NOT_FOUND", "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		servermw.WriteError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "The requested method is not allowed for this resource")
	})

	s := &Server{
		router: r,
		logger: deps.Logger,
		host:   host,
		port:   port,
	}

	s.registerRoutes(deps)

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("Starting HTTP server",
		zap.String("host", s.host),
		zap.Int("port", s.port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing.
func (s *Server) Port() int {
	return s.port
}
