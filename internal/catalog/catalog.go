// Package catalog is the book write path. Every committed change that affects
// search is reported to a ChangeNotifier by an explicit call, after the
// relational write has succeeded.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/storage"
)

// ChangeNotifier receives committed book changes. Implementations must not
// fail the caller; indexer.Synchronizer logs and swallows its own errors.
type ChangeNotifier interface {
	BookChanged(ctx context.Context, id int64, description string)
	BookDeleted(ctx context.Context, id int64)
}

// Service creates, updates and deletes books.
type Service struct {
	store    storage.BookStore
	notifier ChangeNotifier
	logger   *zap.Logger
}

// NewService returns a catalog service. A nil notifier disables index updates.
func NewService(store storage.BookStore, notifier ChangeNotifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Create stores a new book and then reports it once.
func (s *Service) Create(ctx context.Context, in *models.BookInput) (*models.Book, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	book := &models.Book{}
	in.Apply(book)
	if err := s.store.CreateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.logger.Debug("book created", zap.Int64("book_id", book.ID), zap.Bool("has_description", book.HasDescription()))
	if s.notifier != nil {
		s.notifier.BookChanged(ctx, book.ID, book.Description)
	}
	return book, nil
}

// Update overwrites a book. The notifier is called only when the description changed.
func (s *Service) Update(ctx context.Context, id int64, in *models.BookInput) (*models.Book, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	previous := book.Description
	in.Apply(book)
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return nil, fmt.Errorf("update book: %w", err)
	}
	changed := previous != book.Description
	s.logger.Debug("book updated", zap.Int64("book_id", id), zap.Bool("description_changed", changed))
	if changed && s.notifier != nil {
		s.notifier.BookChanged(ctx, book.ID, book.Description)
	}
	return book, nil
}

// Delete removes a book and then reports it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	s.logger.Debug("book deleted", zap.Int64("book_id", id))
	if s.notifier != nil {
		s.notifier.BookDeleted(ctx, id)
	}
	return nil
}

// Get returns a book by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Book, error) {
	return s.store.GetBook(ctx, id)
}

// List returns a page of books ordered by id.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*models.Book, error) {
	return s.store.ListBooks(ctx, offset, limit)
}
