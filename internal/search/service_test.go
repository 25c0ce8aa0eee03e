package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bblohar/MyBook-project/internal/embedding"
	"github.com/bblohar/MyBook-project/internal/indexer"
	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/storage"
	"github.com/bblohar/MyBook-project/internal/vector"
)

const dims = 4

// fakeBooks returns rows sorted by id, never in the order asked for.
type fakeBooks struct {
	rows  map[int64]*models.Book
	err   error
	calls atomic.Int32
}

func (f *fakeBooks) GetBooksByIDs(ctx context.Context, ids []int64) ([]*models.Book, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.Book, 0, len(ids))
	for _, id := range ids {
		if b, ok := f.rows[id]; ok {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type staticSnapshot struct {
	snap *indexer.Snapshot
}

func (s staticSnapshot) Current() *indexer.Snapshot { return s.snap }

// spyIndex counts searches and can return canned hits.
type spyIndex struct {
	vector.Index
	searches atomic.Int32
	canned   []vector.Result
}

func (s *spyIndex) Search(ctx context.Context, q []float32, k int) ([]vector.Result, error) {
	s.searches.Add(1)
	if s.canned != nil {
		return s.canned, nil
	}
	return s.Index.Search(ctx, q, k)
}

func newIndex(t *testing.T, entries map[int64][]float32) *spyIndex {
	t.Helper()
	idx, err := vector.NewMemoryIndex(dims)
	require.NoError(t, err)
	ids := make([]int64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		require.NoError(t, idx.InsertOrReplace(context.Background(), id, entries[id]))
	}
	return &spyIndex{Index: idx}
}

func snapshotOf(idx vector.Index) staticSnapshot {
	return staticSnapshot{snap: &indexer.Snapshot{Index: idx, Built: true, LoadedAt: time.Now()}}
}

func booksFor(ids ...int64) *fakeBooks {
	f := &fakeBooks{rows: make(map[int64]*models.Book)}
	for _, id := range ids {
		f.rows[id] = &models.Book{ID: id, Title: fmt.Sprintf("Book %d", id)}
	}
	return f
}

func bookIDs(resp *models.SearchResponse) []int64 {
	ids := make([]int64, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.Book.ID
	}
	return ids
}

func TestSearchBooks_preservesDistanceOrder(t *testing.T) {
	idx := newIndex(t, map[int64][]float32{
		2: {0.5, 0.5, 0, 0},
		5: {1, 0, 0, 0},
		9: {0, 0, 1, 0},
	})
	emb := embedding.NewMockEmbedder(dims).Set("query", []float32{1, 0, 0, 0})
	books := booksFor(2, 5, 9)
	svc := NewService(books, emb, snapshotOf(idx), Config{DefaultK: 3, MaxK: 10})

	resp, err := svc.SearchBooks(context.Background(), "query", 3)
	require.NoError(t, err)
	assert.False(t, resp.NoMatches)
	assert.Equal(t, []int64{5, 2, 9}, bookIDs(resp))
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, float32(0), resp.Results[0].Distance)
	assert.Equal(t, int32(1), books.calls.Load(), "books are fetched in one batch")
}

func TestSearchBooks_emptyQuery(t *testing.T) {
	idx := newIndex(t, map[int64][]float32{1: {1, 0, 0, 0}})
	emb := embedding.NewMockEmbedder(dims)
	svc := NewService(booksFor(1), emb, snapshotOf(idx), Config{DefaultK: 3, MaxK: 10})

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := svc.SearchBooks(context.Background(), q, 3)
		assert.True(t, errors.Is(err, ErrEmptyQuery), "query %q: %v", q, err)
	}
	assert.Equal(t, int32(0), idx.searches.Load())
	assert.Equal(t, int64(0), emb.Calls())
}

func TestSearchBooks_providerFailedAtStartup(t *testing.T) {
	idx := newIndex(t, map[int64][]float32{1: {1, 0, 0, 0}})
	provider := embedding.Unavailable(dims, errors.New("model file missing"))
	svc := NewService(booksFor(1), provider, snapshotOf(idx), Config{})

	assert.False(t, svc.Available())
	_, err := svc.SearchBooks(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
	assert.True(t, errors.Is(err, embedding.ErrProviderUnavailable))
	assert.Equal(t, int32(0), idx.searches.Load())
}

func TestSearchBooks_initErrorSkipsModelCall(t *testing.T) {
	emb := embedding.NewMockEmbedder(dims)
	idx := newIndex(t, nil)
	svc := NewService(booksFor(), emb, snapshotOf(idx), Config{},
		WithInitError(fmt.Errorf("%w: bad magic", vector.ErrIndexCorrupt)))

	_, err := svc.SearchBooks(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
	assert.True(t, errors.Is(err, vector.ErrIndexCorrupt))
	assert.Equal(t, int64(0), emb.Calls())
}

func TestSearchBooks_noPublishedIndex(t *testing.T) {
	svc := NewService(booksFor(), embedding.NewMockEmbedder(dims), staticSnapshot{}, Config{})
	_, err := svc.SearchBooks(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
	assert.True(t, errors.Is(err, vector.ErrIndexUnavailable))
}

func TestSearchBooks_emptyIndex(t *testing.T) {
	idx := newIndex(t, nil)
	books := booksFor()
	svc := NewService(books, embedding.NewMockEmbedder(dims), snapshotOf(idx), Config{DefaultK: 3, MaxK: 10})

	for _, k := range []int{1, 3, 10} {
		for _, q := range []string{"anything", "cooking", "a"} {
			resp, err := svc.SearchBooks(context.Background(), q, k)
			require.NoError(t, err)
			assert.True(t, resp.NoMatches)
			assert.Empty(t, resp.Results)
		}
	}
	assert.Equal(t, int32(0), books.calls.Load())
}

func TestSearchBooks_sentinelIDsDropped(t *testing.T) {
	idx := newIndex(t, nil)
	idx.canned = []vector.Result{{ID: -1, Distance: 0}, {ID: -1, Distance: 0}}
	books := booksFor()
	svc := NewService(books, embedding.NewMockEmbedder(dims), snapshotOf(idx), Config{})

	resp, err := svc.SearchBooks(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.True(t, resp.NoMatches)
	assert.Equal(t, int32(0), books.calls.Load())

	idx.canned = []vector.Result{{ID: 4, Distance: 0.2}, {ID: -1}}
	svc = NewService(booksFor(4), embedding.NewMockEmbedder(dims), snapshotOf(idx), Config{})
	resp, err = svc.SearchBooks(context.Background(), "anything", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, bookIDs(resp))
}

func TestSearchBooks_storeFailure(t *testing.T) {
	idx := newIndex(t, map[int64][]float32{1: {1, 0, 0, 0}})
	books := booksFor(1)
	books.err = errors.New("connection refused")
	svc := NewService(books, embedding.NewMockEmbedder(dims), snapshotOf(idx), Config{})

	_, err := svc.SearchBooks(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
}

func TestSearchBooks_providerCallFailure(t *testing.T) {
	idx := newIndex(t, map[int64][]float32{1: {1, 0, 0, 0}})
	emb := embedding.NewMockEmbedder(dims)
	emb.Fail(errors.New("deadline exceeded"))
	svc := NewService(booksFor(1), emb, snapshotOf(idx), Config{})

	assert.True(t, svc.Available())
	_, err := svc.SearchBooks(context.Background(), "anything", 3)
	assert.True(t, errors.Is(err, ErrSearchUnavailable))
	assert.True(t, errors.Is(err, embedding.ErrProviderUnavailable))
	assert.Equal(t, int32(0), idx.searches.Load())
}

func TestSearchBooks_kDefaultsAndCap(t *testing.T) {
	entries := make(map[int64][]float32)
	ids := make([]int64, 0, 10)
	for i := int64(1); i <= 10; i++ {
		entries[i] = []float32{float32(i), 0, 0, 0}
		ids = append(ids, i)
	}
	svc := NewService(booksFor(ids...), embedding.NewMockEmbedder(dims), snapshotOf(newIndex(t, entries)),
		Config{DefaultK: 3, MaxK: 5})

	resp, err := svc.SearchBooks(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 3)
	assert.Equal(t, 3, resp.K)

	resp, err = svc.SearchBooks(context.Background(), "anything", 100)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 5)
	assert.Equal(t, 5, resp.K)
}

// Wires a real store and synchronizer end to end.
func newCatalog(t *testing.T) (*storage.SQLStore, *embedding.MockEmbedder, *indexer.Synchronizer) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "books.db"), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb := embedding.NewMockEmbedder(dims)
	sync := indexer.NewSynchronizer(store, emb, indexer.Config{
		IndexPath:  filepath.Join(dir, "book_index.bin"),
		Dimensions: dims,
	})
	t.Cleanup(func() { _ = sync.Close() })
	require.NoError(t, sync.Open(context.Background()))
	return store, emb, sync
}

func TestSearchBooks_cookingRanksBakingFirst(t *testing.T) {
	store, emb, sync := newCatalog(t)
	ctx := context.Background()
	emb.Set("space exploration and rockets", []float32{1, 0, 0, 0})
	emb.Set("baking bread recipes", []float32{0, 1, 0, 0})
	emb.Set("cooking", []float32{0.2, 0.8, 0, 0})

	space := &models.Book{Title: "Rockets", Description: "space exploration and rockets"}
	bread := &models.Book{Title: "Bread", Description: "baking bread recipes"}
	require.NoError(t, store.CreateBook(ctx, space))
	require.NoError(t, store.CreateBook(ctx, bread))
	_, err := sync.Rebuild(ctx)
	require.NoError(t, err)

	svc := NewService(store, emb, sync, Config{DefaultK: 3, MaxK: 10})
	resp, err := svc.SearchBooks(ctx, "cooking", 3)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, bread.ID, resp.Results[0].Book.ID)
	assert.Equal(t, "Bread", resp.Results[0].Book.Title)
	assert.Less(t, resp.Results[0].Distance, resp.Results[1].Distance)

	// Self-retrieval.
	for _, b := range []*models.Book{space, bread} {
		resp, err := svc.SearchBooks(ctx, b.Description, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{b.ID}, bookIDs(resp))
	}
}

func TestSearchBooks_afterIncrementalUpdate(t *testing.T) {
	store, emb, sync := newCatalog(t)
	ctx := context.Background()
	emb.Set("Intro to Algorithms", []float32{0, 0, 1, 0})
	emb.Set("algorithms", []float32{0, 0, 0.9, 0.1})
	emb.Set("gardening", []float32{0, 0, 0, 1})

	garden := &models.Book{Title: "Garden", Description: "gardening"}
	require.NoError(t, store.CreateBook(ctx, garden))
	_, err := sync.Rebuild(ctx)
	require.NoError(t, err)

	algo := &models.Book{Title: "CLRS", Description: "Intro to Algorithms"}
	require.NoError(t, store.CreateBook(ctx, algo))
	sync.BookChanged(ctx, algo.ID, algo.Description)

	svc := NewService(store, emb, sync, Config{DefaultK: 3, MaxK: 10})
	resp, err := svc.SearchBooks(ctx, "algorithms", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{algo.ID}, bookIDs(resp))

	// Deleted rows that are still indexed are dropped from the result.
	require.NoError(t, store.DeleteBook(ctx, algo.ID))
	resp, err = svc.SearchBooks(ctx, "algorithms", 1)
	require.NoError(t, err)
	assert.True(t, resp.NoMatches)
}
