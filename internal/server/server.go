// Package server exposes the HTTP + WebSocket API over the chart registry.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattvy/chartgrid/internal/domain"
	"github.com/mattvy/chartgrid/internal/server/handler"
	"github.com/mattvy/chartgrid/internal/server/middleware"
	"github.com/mattvy/chartgrid/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per minute when a limiter is
	// wired. Zero disables the middleware.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archives may be nil when object storage is not configured.
type Handlers struct {
	Health   *handler.HealthHandler
	Panels   *handler.PanelHandler
	Settings *handler.SettingsHandler
	Profile  *handler.ProfileHandler
	Archives *handler.ArchivesHandler
}

// Server is the headless HTTP + WebSocket API server for the chart grid.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, optional rate limiting) and
// attaches the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Panel lifecycle endpoints.
	mux.HandleFunc("GET /api/panels", handlers.Panels.ListPanels)
	mux.HandleFunc("POST /api/panels", handlers.Panels.AddPanel)
	mux.HandleFunc("DELETE /api/panels/{id}", handlers.Panels.RemovePanel)
	mux.HandleFunc("PUT /api/panels/{id}/timeframe", handlers.Panels.ChangeTimeframe)
	mux.HandleFunc("PUT /api/panels/{id}/size", handlers.Panels.ResizePanel)
	mux.HandleFunc("POST /api/panels/reload", handlers.Panels.ReloadAll)
	mux.HandleFunc("GET /api/timeframes", handlers.Panels.ListTimeframes)
	mux.HandleFunc("GET /api/layout", handlers.Panels.GetLayout)

	// Shared analysis settings.
	mux.HandleFunc("GET /api/settings", handlers.Settings.GetSettings)
	mux.HandleFunc("PUT /api/settings", handlers.Settings.UpdateSettings)

	// Volume profile.
	mux.HandleFunc("GET /api/profile", handlers.Profile.GetProfile)
	mux.HandleFunc("POST /api/profile/snapshot", handlers.Profile.SnapshotProfile)

	// Trade archive listing (only when object storage is configured).
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
