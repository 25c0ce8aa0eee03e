package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/catalog"
	"github.com/bblohar/MyBook-project/internal/config"
	"github.com/bblohar/MyBook-project/internal/embedding"
	"github.com/bblohar/MyBook-project/internal/indexer"
	"github.com/bblohar/MyBook-project/internal/search"
	"github.com/bblohar/MyBook-project/internal/storage"
	"github.com/bblohar/MyBook-project/internal/vector"
)

const defaultConfigPath = "/usr/local/etc/mybook/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory takes precedence if it exists, so running from a project
// checkout uses the project's config. Returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds the long-lived services, created once per process.
type Components struct {
	Storage     storage.BookStore
	Provider    *embedding.Provider
	Sync        *indexer.Synchronizer
	Search      *search.Service
	Catalog     *catalog.Service
	IndexOpened bool
}

// Close releases every component.
func (c *Components) Close() {
	if c.Sync != nil {
		_ = c.Sync.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents wires the store, embedding provider, synchronizer and
// services. A store failure is fatal. Provider and index failures are recorded
// on the search service, which then reports itself unavailable until restart.
// openIndex is false for commands that replace the index without reading it.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, openIndex bool) (*Components, error) {
	store, err := storage.NewBookStore(cfg.Storage.DatabaseDSN, cfg.Storage.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	provider := embedding.New(embedding.Options{
		Provider:   cfg.Embedding.Provider,
		ModelPath:  cfg.Embedding.ModelPath,
		VocabPath:  cfg.Embedding.VocabPath,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
		Normalize:  cfg.Embedding.NormalizeOrDefault(),
		Timeout:    cfg.Embedding.Timeout,
	}, logger)

	if cfg.Vector.IndexType == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		logger.Error("index_type faiss requested but this binary was built without FAISS support; rebuild with -tags=faiss")
	}
	sync := indexer.NewSynchronizer(store, provider, indexer.Config{
		IndexPath:            cfg.Storage.IndexPath,
		IndexType:            cfg.Vector.IndexType,
		Dimensions:           cfg.Embedding.Dimensions,
		OnDescriptionCleared: cfg.Sync.OnDescriptionCleared,
	}, indexer.WithLogger(logger))

	c := &Components{Storage: store, Provider: provider, Sync: sync}
	var indexErr error
	if openIndex {
		if indexErr = sync.Open(ctx); indexErr != nil {
			logger.Error("vector index failed to initialize", zap.String("path", cfg.Storage.IndexPath), zap.Error(indexErr))
		} else {
			c.IndexOpened = true
		}
	}

	c.Search = search.NewService(store, provider, sync, search.Config{
		DefaultK: cfg.Search.DefaultK,
		MaxK:     cfg.Search.MaxK,
	}, search.WithLogger(logger), search.WithInitError(indexErr))
	c.Catalog = catalog.NewService(store, sync, logger)
	return c, nil
}
