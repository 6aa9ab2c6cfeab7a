// Package api is the HTTP admission surface: job submission endpoints for
// the destructive organization tools, the job list and operator actions,
// and the synchronous workspace similarity search.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/config"
	"github.com/fyrsmithlabs/vectoradmin/internal/workers"
)

// Server is the HTTP server over the workflow service.
type Server struct {
	cfg     config.ServerConfig
	echo    *echo.Echo
	service *workers.Service
	log     *zap.Logger
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewServer builds the server and registers all routes. Auth is a
// pluggable middleware applied to the /v1 group; pass nil for none.
func NewServer(cfg config.ServerConfig, service *workers.Service, authMiddleware echo.MiddlewareFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{cfg: cfg, echo: e, service: service, log: log}
	s.registerRoutes(authMiddleware)
	return s
}

func (s *Server) registerRoutes(authMiddleware echo.MiddlewareFunc) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	if authMiddleware != nil {
		v1.Use(authMiddleware)
	}

	// Organization tools.
	v1.POST("/tools/org/:slug/migrate", s.handleMigrate)
	v1.POST("/tools/org/:slug/reset", s.handleReset)
	v1.POST("/tools/org/:slug/workspace-similarity-search", s.handleSimilaritySearch)

	// Ingestion and deletion.
	v1.POST("/workspace/:workspaceID/documents", s.handleAddDocuments)
	v1.POST("/workspace/:workspaceID/clone", s.handleCloneWorkspace)
	v1.DELETE("/document/:id", s.handleDeleteDocument)
	v1.DELETE("/document/vector/:id", s.handleDeleteFragment)

	// Job ledger.
	v1.GET("/jobs/:orgID", s.handleListJobs)
	v1.POST("/jobs/:id/retry", s.handleRetryJob)
	v1.POST("/jobs/:id/kill", s.handleKillJob)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: "vectoradmin"})
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
