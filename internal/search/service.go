// Package search is the query side of semantic book search: it embeds a query,
// searches the published vector index and returns Book records in distance order.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/embedding"
	"github.com/bblohar/MyBook-project/internal/indexer"
	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/storage"
	"github.com/bblohar/MyBook-project/internal/vector"
)

var (
	// ErrEmptyQuery is returned for blank query text.
	ErrEmptyQuery = errors.New("empty query")
	// ErrSearchUnavailable is returned when the embedding provider or the vector
	// index is not usable. The underlying kind is wrapped alongside it.
	ErrSearchUnavailable = errors.New("search unavailable")
)

// BookFetcher hydrates index hits. GetBooksByIDs may return rows in any order.
type BookFetcher interface {
	GetBooksByIDs(ctx context.Context, ids []int64) ([]*models.Book, error)
}

// Snapshotter exposes the currently published index.
type Snapshotter interface {
	Current() *indexer.Snapshot
}

// Config holds result-size settings.
type Config struct {
	DefaultK int
	MaxK     int
}

// Service answers free-text book searches.
type Service struct {
	books    BookFetcher
	embedder embedding.Embedder
	index    Snapshotter
	cfg      Config
	initErr  error
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithInitError records a startup failure of the embedding provider or the
// vector index. The service then reports ErrSearchUnavailable until restart.
func WithInitError(err error) Option {
	return func(s *Service) {
		if err != nil && s.initErr == nil {
			s.initErr = err
		}
	}
}

// NewService creates a query service. An embedder that reports an
// initialization error through Err (such as an unavailable
// embedding.Provider) makes the service unavailable.
func NewService(books BookFetcher, embedder embedding.Embedder, index Snapshotter, cfg Config, opts ...Option) *Service {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 3
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	s := &Service{
		books:    books,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if p, ok := embedder.(interface{ Err() error }); ok && s.initErr == nil {
		if err := p.Err(); err != nil {
			s.initErr = fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
		}
	}
	if s.initErr != nil {
		s.logger.Error("semantic search disabled until restart", zap.Error(s.initErr))
	}
	return s
}

// Available reports whether searches can be served.
func (s *Service) Available() bool {
	return s.initErr == nil
}

// DefaultK returns the result count used when a caller does not ask for one.
func (s *Service) DefaultK() int {
	return s.cfg.DefaultK
}

// SearchBooks returns up to k books closest to queryText, closest first.
// No matches is an empty response with NoMatches set, not an error.
func (s *Service) SearchBooks(ctx context.Context, queryText string, k int) (*models.SearchResponse, error) {
	return s.Search(ctx, &models.SearchQuery{Query: queryText, K: k})
}

// Search runs query. k <= 0 uses the default and k is capped at MaxK.
func (s *Service) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := ProcessQuery(query, s.cfg.DefaultK, s.cfg.MaxK); err != nil {
		return nil, err
	}
	if s.initErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, s.initErr)
	}
	snap := s.index.Current()
	if snap == nil || snap.Index == nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, vector.ErrIndexUnavailable)
	}

	vec, err := s.embedder.Embed(ctx, query.Query)
	if err != nil {
		if !errors.Is(err, embedding.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %w", embedding.ErrProviderUnavailable, err)
		}
		s.logger.Warn("query embedding failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
	}

	hits, err := snap.Index.Search(ctx, vec, query.K)
	if err != nil {
		s.logger.Error("vector search failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w: %w", ErrSearchUnavailable, vector.ErrIndexUnavailable, err)
	}
	hits = dropSentinels(hits)

	resp := &models.SearchResponse{
		Query:   query.Query,
		K:       query.K,
		Results: []*models.SearchResult{},
	}
	if len(hits) > 0 {
		ids := make([]int64, len(hits))
		for i, h := range hits {
			ids[i] = h.ID
		}
		books, err := s.books.GetBooksByIDs(ctx, ids)
		if err != nil {
			if !errors.Is(err, storage.ErrStoreUnavailable) {
				err = fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
			}
			s.logger.Error("book lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
		}
		resp.Results = orderByRank(hits, books)
	}
	resp.NoMatches = len(resp.Results) == 0
	resp.QueryTime = time.Since(start).Milliseconds()

	s.logger.Debug("search completed",
		zap.String("query", query.Query),
		zap.Int("k", query.K),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(resp.Results)))
	return resp, nil
}
