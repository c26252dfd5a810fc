package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/cookiepool/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:        s.Addr(),
		Handler:     s.withConditionalMiddleware(s.router),
		ReadTimeout: 15 * time.Second,
		// Switches wait on the dispatcher and the browser; keep the write window generous
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.app.Config.Server.Host, fmt.Sprintf("%d", s.app.Config.Server.Port))
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.Addr()).
		Msg("HTTP server starting")

	s.app.Logger.Info().
		Str("url", fmt.Sprintf("http://%s", s.Addr())).
		Str("websocket", fmt.Sprintf("ws://%s/ws", s.Addr())).
		Msg("Control API available")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	// Hijacked WebSocket connections are not closed by http.Server.Shutdown
	if s.app.WSHandler != nil {
		s.app.WSHandler.Close()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
