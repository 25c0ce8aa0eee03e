// Package server provides the HTTP API for mybook: conversational and JSON book
// search, the catalog write path and index administration.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/catalog"
	"github.com/bblohar/MyBook-project/internal/config"
	"github.com/bblohar/MyBook-project/internal/indexer"
	"github.com/bblohar/MyBook-project/internal/search"
	"github.com/bblohar/MyBook-project/internal/storage"
)

// Server is the HTTP server for the mybook API.
type Server struct {
	search  *search.Service
	catalog *catalog.Service
	sync    *indexer.Synchronizer
	storage storage.BookStore
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	searchSvc *search.Service,
	catalogSvc *catalog.Service,
	sync *indexer.Synchronizer,
	store storage.BookStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		search:  searchSvc,
		catalog: catalogSvc,
		sync:    sync,
		storage: store,
		config:  cfg,
		logger:  logger,
	}
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	if s.config.Debug {
		r.Use(middleware.Logger)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/search", s.handleSearch)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", s.handleListBooks)
			r.Post("/", s.handleCreateBook)
			r.Get("/{id}", s.handleGetBook)
			r.Put("/{id}", s.handleUpdateBook)
			r.Delete("/{id}", s.handleDeleteBook)
		})

		r.Post("/index/rebuild", s.handleRebuild)
		r.Get("/index/rebuild", s.handleRebuildStatus)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
