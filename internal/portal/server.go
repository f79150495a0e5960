// Package portal serves the local web portal: JSON endpoints for the auth
// forms and pages gated by the route guard.
package portal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilimopesa/internal/config"
	"github.com/kilimopesa/internal/guard"
	"github.com/kilimopesa/internal/session"
)

const (
	maxBodySize     = 64 << 10         // auth forms are small
	readTimeout     = 15 * time.Second // 15s for reading request
	writeTimeout    = 60 * time.Second // covers a slow upstream API call
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server wraps the HTTP server
type Server struct {
	config     *config.Config
	store      *session.Store
	onboarding *session.Onboarding
	paths      guard.Paths
	logger     *slog.Logger
	engine     *gin.Engine

	navMu      sync.Mutex
	navigateTo string
	stopWatch  func()
}

// NewServer creates the portal for store
func NewServer(cfg *config.Config, store *session.Store, logger *slog.Logger) *Server {
	// Set Gin mode based on environment
	switch cfg.Environment {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	// Middleware - order matters
	engine.Use(securityHeadersMiddleware())
	engine.Use(cacheControlMiddleware())
	engine.Use(requestIDMiddleware())
	engine.Use(loggerMiddleware(logger))
	engine.Use(jsonBodyLimitMiddleware(maxBodySize))

	engine.MaxMultipartMemory = maxBodySize

	server := &Server{
		config:     cfg,
		store:      store,
		onboarding: session.NewOnboarding(store),
		paths:      guard.DefaultPaths,
		logger:     logger.With("component", "portal"),
		engine:     engine,
	}

	// Browser pages follow session changes through /api/session
	navigator := guard.NewNavigator(server.paths, server.recordNavigation, server.logger)
	navigator.SetPolicy(guard.Verified)
	server.stopWatch = navigator.Watch(store)

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	addr := s.config.Portal.ListenAddress
	if addr == "" {
		addr = "127.0.0.1:8090"
	}

	// Configure server with timeouts
	server := &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("portal listening", "address", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops following the session store. Run calls it on return;
// servers that are never run must call it themselves.
func (s *Server) Close() {
	s.stopWatch()
}

func (s *Server) recordNavigation(path string) {
	s.navMu.Lock()
	s.navigateTo = path
	s.navMu.Unlock()
}

// takeNavigation returns and clears the pending navigation
func (s *Server) takeNavigation() string {
	s.navMu.Lock()
	defer s.navMu.Unlock()
	path := s.navigateTo
	s.navigateTo = ""
	return path
}
