package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"theblob/pkg/config"
	"theblob/pkg/domain"
)

// Server represents HTTP server instance serving the public feed API and the
// live update channel
type Server struct {
	config  ConfigProvider
	db      Database
	hub     *Hub
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Database interface for server operations
type Database interface {
	GetPublicBlobs(ctx context.Context, page, perPage int) ([]domain.Blob, error)
	GetPublicBlob(ctx context.Context, blobID int64) (*domain.Blob, error)
	GetLatestPublicBlobs(ctx context.Context, limit int) ([]domain.Blob, error)
	SearchPublicBlobs(ctx context.Context, query string) ([]domain.Blob, error)
	GetPublicBlobsByDays(ctx context.Context, days int) ([]domain.Blob, error)
	SimilarToBlob(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error)
	CountPublicBlobs(ctx context.Context) (int64, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
	GetFeedConfig() config.FeedConfig
}

// New initializes a new server instance
func New(cfg ConfigProvider, db Database, hub *Hub, version string, debug bool) *Server {
	s := &Server{
		config:  cfg,
		db:      db,
		hub:     hub,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// Handler exposes the configured router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("theblob", "theblob", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	// API routes
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /blobs", s.blobsHandler)
		r.HandleFunc("GET /blobs/{id}", s.blobHandler)
		r.HandleFunc("GET /search", s.searchHandler)
		r.HandleFunc("GET /timeline", s.timelineHandler)
	})

	// live update channel
	s.router.HandleFunc("GET /ws", s.hub.ServeWS)
}
