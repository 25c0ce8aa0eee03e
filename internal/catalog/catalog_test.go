package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/storage"
)

type change struct {
	deleted     bool
	id          int64
	description string
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []change
}

func (r *recordingNotifier) BookChanged(_ context.Context, id int64, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{id: id, description: description})
}

func (r *recordingNotifier) BookDeleted(_ context.Context, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{deleted: true, id: id})
}

func newTestService(t *testing.T) (*Service, *recordingNotifier, storage.BookStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "books.db"), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	n := &recordingNotifier{}
	return NewService(store, n, nil), n, store
}

func TestCreate_notifiesOnce(t *testing.T) {
	svc, n, store := newTestService(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, &models.BookInput{Title: "  Dune ", Author: "Frank Herbert", Description: "Desert planet"})
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.True(t, book.Available)
	assert.Equal(t, []change{{id: book.ID, description: "Desert planet"}}, n.changes)

	stored, err := store.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Desert planet", stored.Description)

	// Books without a description are still reported; the synchronizer decides.
	blank, err := svc.Create(ctx, &models.BookInput{Title: "Untitled"})
	require.NoError(t, err)
	assert.Equal(t, change{id: blank.ID}, n.changes[1])
}

func TestUpdate_notifiesOnlyOnDescriptionChange(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()

	book, err := svc.Create(ctx, &models.BookInput{Title: "Dune", Description: "Desert planet"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, book.ID, &models.BookInput{Title: "Dune (2nd ed.)", Description: "Desert planet"})
	require.NoError(t, err)
	assert.Len(t, n.changes, 1)

	updated, err := svc.Update(ctx, book.ID, &models.BookInput{Title: "Dune", Description: "Spice and sandworms"})
	require.NoError(t, err)
	assert.Equal(t, "Spice and sandworms", updated.Description)
	require.Len(t, n.changes, 2)
	assert.Equal(t, change{id: book.ID, description: "Spice and sandworms"}, n.changes[1])

	_, err = svc.Update(ctx, book.ID, &models.BookInput{Title: "Dune"})
	require.NoError(t, err)
	require.Len(t, n.changes, 3)
	assert.Equal(t, change{id: book.ID}, n.changes[2])
}

func TestUpdate_missingBook(t *testing.T) {
	svc, n, _ := newTestService(t)
	_, err := svc.Update(context.Background(), 404, &models.BookInput{Title: "Ghost"})
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Empty(t, n.changes)
}

func TestDelete_notifies(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()
	book, err := svc.Create(ctx, &models.BookInput{Title: "Dune", Description: "Desert planet"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, book.ID))
	assert.Equal(t, change{deleted: true, id: book.ID}, n.changes[1])

	err = svc.Delete(ctx, book.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Len(t, n.changes, 2)
}

func TestValidate(t *testing.T) {
	svc, n, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   *models.BookInput
	}{
		{"nil", nil},
		{"blank title", &models.BookInput{Title: "   "}},
		{"long title", &models.BookInput{Title: strings.Repeat("a", 256)}},
		{"long author", &models.BookInput{Title: "ok", Author: strings.Repeat("b", 256)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.True(t, errors.Is(err, ErrInvalidBook), "got %v", err)
		})
	}
	assert.Empty(t, n.changes)
}
