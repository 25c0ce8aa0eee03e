// Package storage defines the relational Book store: the source of truth the
// search index is derived from.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bblohar/MyBook-project/internal/models"
)

var (
	// ErrNotFound is returned when a book row does not exist.
	ErrNotFound = errors.New("book not found")
	// ErrStoreUnavailable wraps connection, query and timeout failures.
	ErrStoreUnavailable = errors.New("book store unavailable")
)

// DefaultTimeout bounds every store call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// BookStore defines book persistence operations.
type BookStore interface {
	// Catalog operations
	CreateBook(ctx context.Context, book *models.Book) error
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	UpdateBook(ctx context.Context, book *models.Book) error
	DeleteBook(ctx context.Context, id int64) error
	ListBooks(ctx context.Context, offset, limit int) ([]*models.Book, error)

	// Search index support
	ListIndexable(ctx context.Context) ([]models.BookText, error)
	GetBooksByIDs(ctx context.Context, ids []int64) ([]*models.Book, error)
	UpdateEmbedding(ctx context.Context, id int64, embedding []float32) error
	UpdateEmbeddings(ctx context.Context, embeddings map[int64][]float32) error
	ListEmbedded(ctx context.Context) ([]int64, error)

	// Stats
	CountBooks(ctx context.Context) (int64, error)
	CountIndexable(ctx context.Context) (int64, error)

	// Path returns the database file for SQLite stores, or "" for network databases.
	Path() string
	Close() error
}
