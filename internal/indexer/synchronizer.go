// Package indexer keeps the book vector index consistent with the Book table:
// full rebuilds, incremental upserts and removals, and reloads of the index file.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bblohar/MyBook-project/internal/config"
	"github.com/bblohar/MyBook-project/internal/embedding"
	"github.com/bblohar/MyBook-project/internal/models"
	"github.com/bblohar/MyBook-project/internal/storage"
	"github.com/bblohar/MyBook-project/internal/vector"
)

// Snapshot is one published, read-only version of the index. Built is false
// until an index file exists.
type Snapshot struct {
	Index    vector.Index
	Built    bool
	LoadedAt time.Time
}

// Config selects the index file and the stale-entry policy.
type Config struct {
	IndexPath  string
	IndexType  string
	Dimensions int
	// OnDescriptionCleared is config.ClearedKeep or config.ClearedRemove (default).
	OnDescriptionCleared string
}

// Synchronizer owns the vector index. Within a process a mutex serializes every
// load-mutate-save of the index file; across processes an advisory lock on
// "<index path>.lock" does. Readers use Current, which returns the last
// published snapshot without locking. Every mutation publishes a new index
// object, so a snapshot a reader holds never changes under it.
type Synchronizer struct {
	store    storage.BookStore
	embedder embedding.Embedder
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	lock     *fileLock
	current  atomic.Pointer[Snapshot]
	fileInfo os.FileInfo // index file as last loaded or written; guarded by mu

	group   singleflight.Group
	jobMu   sync.Mutex
	lastJob *models.RebuildJob

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// NewSynchronizer creates a synchronizer. Call Open before serving searches.
func NewSynchronizer(store storage.BookStore, embedder embedding.Embedder, cfg Config, opts ...Option) *Synchronizer {
	if cfg.OnDescriptionCleared == "" {
		cfg.OnDescriptionCleared = config.ClearedRemove
	}
	if cfg.IndexType == "" {
		cfg.IndexType = string(vector.IndexTypeMemory)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		lock:     newFileLock(cfg.IndexPath),
		logger:   zap.NewNop(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads the persisted index. A missing file publishes an empty, not yet
// built snapshot and is not an error. A corrupt file is returned wrapped in
// vector.ErrIndexCorrupt and nothing is published.
func (s *Synchronizer) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lock.acquire(ctx, true)
	if err != nil {
		return errors.Join(vector.ErrIndexUnavailable, err)
	}
	defer release()

	idx, err := vector.LoadVectorIndex(s.cfg.IndexType, s.cfg.Dimensions, s.cfg.IndexPath)
	switch {
	case errors.Is(err, vector.ErrIndexAbsent):
		empty, nerr := vector.NewVectorIndex(s.cfg.IndexType, s.cfg.Dimensions)
		if nerr != nil {
			return errors.Join(vector.ErrIndexUnavailable, nerr)
		}
		s.logger.Warn("index not yet built; searches return no matches until a rebuild",
			zap.String("path", s.cfg.IndexPath))
		s.publish(empty, false)
		return nil
	case err != nil:
		s.logger.Error("failed to load index", zap.String("path", s.cfg.IndexPath), zap.Error(err))
		return err
	}
	s.logger.Info("index loaded", zap.String("path", s.cfg.IndexPath), zap.Int("entries", idx.Size()))
	s.publish(idx, true)
	s.noteFile()
	return nil
}

// Current returns the published snapshot, or nil before Open succeeds.
func (s *Synchronizer) Current() *Snapshot {
	return s.current.Load()
}

func (s *Synchronizer) publish(idx vector.Index, built bool) {
	s.current.Store(&Snapshot{Index: idx, Built: built, LoadedAt: time.Now()})
}

// noteFile remembers the index file's identity so Reload can skip our own writes.
func (s *Synchronizer) noteFile() {
	if fi, err := os.Stat(s.cfg.IndexPath); err == nil {
		s.fileInfo = fi
	}
}

// unchanged reports whether the index file is still the one last loaded or written.
func (s *Synchronizer) unchanged() bool {
	if s.fileInfo == nil {
		return false
	}
	cur, err := os.Stat(s.cfg.IndexPath)
	if err != nil {
		return false
	}
	return os.SameFile(s.fileInfo, cur) && cur.Size() == s.fileInfo.Size() && cur.ModTime().Equal(s.fileInfo.ModTime())
}

// Reload re-reads the index file, typically after an offline rebuild by another
// process. If the file is missing or corrupt the current snapshot is kept.
// A file this synchronizer wrote itself is not read again.
func (s *Synchronizer) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unchanged() {
		s.logger.Debug("index file unchanged; skipping reload", zap.String("path", s.cfg.IndexPath))
		return nil
	}
	release, err := s.lock.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	idx, err := vector.LoadVectorIndex(s.cfg.IndexType, s.cfg.Dimensions, s.cfg.IndexPath)
	if err != nil {
		if errors.Is(err, vector.ErrIndexAbsent) {
			s.logger.Warn("index file missing on reload; keeping current index", zap.String("path", s.cfg.IndexPath))
		} else {
			s.logger.Error("failed to reload index; keeping current index", zap.String("path", s.cfg.IndexPath), zap.Error(err))
		}
		return err
	}
	s.publish(idx, true)
	s.noteFile()
	s.logger.Info("index reloaded", zap.String("path", s.cfg.IndexPath), zap.Int("entries", idx.Size()))
	return nil
}

// BookChanged brings the index up to date after a book was created or its
// description changed. It runs after the catalog write has committed, so every
// failure is logged and swallowed.
func (s *Synchronizer) BookChanged(ctx context.Context, id int64, description string) {
	// The triggering request may end before the update finishes.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.Int64("book_id", id))

	text := NormalizeDescription(description)
	if text == "" {
		if s.cfg.OnDescriptionCleared == config.ClearedKeep {
			log.Debug("description cleared; keeping stale index entry until next rebuild")
			return
		}
		if err := s.store.UpdateEmbedding(ctx, id, nil); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error("failed to clear cached embedding", zap.Error(err))
		}
		s.mutate(ctx, log, "remove", func(idx vector.Index) error {
			return idx.Remove(ctx, id)
		})
		return
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		log.Error("failed to embed description; index not updated", zap.Error(err))
		return
	}
	if err := s.store.UpdateEmbedding(ctx, id, vec); err != nil {
		log.Error("failed to store cached embedding", zap.Error(err))
	}
	s.mutate(ctx, log, "upsert", func(idx vector.Index) error {
		if err := idx.Remove(ctx, id); err != nil {
			return err
		}
		return idx.InsertOrReplace(ctx, id, vec)
	})
}

// BookDeleted removes a deleted book from the index under the same rules as BookChanged.
func (s *Synchronizer) BookDeleted(ctx context.Context, id int64) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(zap.Int64("book_id", id))
	s.mutate(ctx, log, "delete", func(idx vector.Index) error {
		return idx.Remove(ctx, id)
	})
}

// mutate loads the persisted index, applies fn, persists and publishes the result.
// When no index file exists the update is skipped.
func (s *Synchronizer) mutate(ctx context.Context, log *zap.Logger, op string, fn func(vector.Index) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lockCtx, cancel := context.WithTimeout(ctx, mutateLockTimeout)
	release, err := s.lock.acquire(lockCtx, false)
	cancel()
	if err != nil {
		log.Error("index file busy; incremental update not applied", zap.String("op", op), zap.Error(err))
		return
	}
	defer release()

	idx, err := vector.LoadVectorIndex(s.cfg.IndexType, s.cfg.Dimensions, s.cfg.IndexPath)
	if errors.Is(err, vector.ErrIndexAbsent) {
		log.Warn("index not yet built; skipping incremental update", zap.String("op", op))
		return
	}
	if err != nil {
		log.Error("failed to load index for incremental update", zap.String("op", op), zap.Error(err))
		return
	}
	if err := fn(idx); err != nil {
		_ = idx.Close()
		log.Error("incremental index update failed", zap.String("op", op), zap.Error(err))
		return
	}
	if err := idx.Save(s.cfg.IndexPath); err != nil {
		_ = idx.Close()
		log.Error("failed to persist index", zap.String("op", op), zap.Error(err))
		return
	}
	s.publish(idx, true)
	s.noteFile()
	log.Debug("index updated", zap.String("op", op), zap.Int("entries", idx.Size()))
}

// Rebuild replaces the index with one built from every book that has a
// description. Failures before the new index is persisted leave the persisted
// and published index untouched. Concurrent calls share one run, but a caller
// never gets the result of a run that read the catalog before the call began;
// it waits for a follow-up run instead.
func (s *Synchronizer) Rebuild(ctx context.Context) (*models.RebuildResult, error) {
	requested := time.Now()
	for {
		v, err, _ := s.group.Do("rebuild", func() (any, error) {
			return s.rebuild(ctx)
		})
		if err != nil {
			return nil, err
		}
		run := v.(*rebuildRun)
		if !run.listedAt.Before(requested) {
			res := run.result
			return &res, nil
		}
		s.logger.Debug("joined a rebuild that listed books before this request; rebuilding again")
	}
}

// rebuildRun is one completed rebuild. listedAt is when the catalog was read
// for the final time, under the index lock.
type rebuildRun struct {
	result   models.RebuildResult
	listedAt time.Time
}

type embeddedText struct {
	text string
	vec  []float32
}

// rebuild embeds the catalog without holding any lock, so incremental updates
// keep flowing. It then takes the index lock, lists the catalog again and
// embeds only what changed in between, whether the change came from this
// process or another one, before writing the new index.
func (s *Synchronizer) rebuild(ctx context.Context) (*rebuildRun, error) {
	start := time.Now()

	books, err := s.store.ListIndexable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	embedded, err := s.embedTexts(ctx, books, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	release, err := s.lock.acquire(ctx, false)
	if err != nil {
		return nil, errors.Join(vector.ErrIndexUnavailable, err)
	}
	defer release()

	listedAt := time.Now()
	books, err = s.store.ListIndexable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	current, err := s.embedTexts(ctx, books, embedded)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(current))
	vecs := make([][]float32, 0, len(current))
	for _, b := range books {
		if e, ok := current[b.ID]; ok {
			ids = append(ids, b.ID)
			vecs = append(vecs, e.vec)
		}
	}
	if len(ids) == 0 {
		s.logger.Warn("no books with descriptions found; writing empty index")
	}

	idx, err := vector.NewVectorIndex(s.cfg.IndexType, s.cfg.Dimensions)
	if err != nil {
		return nil, errors.Join(vector.ErrIndexUnavailable, err)
	}
	if err := idx.InsertBatch(ctx, ids, vecs); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	if err := idx.Save(s.cfg.IndexPath); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to persist index: %w", err)
	}
	s.noteFile()

	run := &rebuildRun{result: models.RebuildResult{Indexed: len(ids)}, listedAt: listedAt}
	if err := s.refreshCachedEmbeddings(ctx, ids, vecs); err != nil {
		s.logger.Error("index rebuilt but cached embeddings not updated", zap.Error(err))
		run.result.EmbeddingCacheError = err.Error()
	}
	s.publish(idx, true)

	run.result.Duration = time.Since(start)
	s.logger.Info("index rebuilt",
		zap.Int("indexed", run.result.Indexed),
		zap.Duration("duration", run.result.Duration),
		zap.String("path", s.cfg.IndexPath))
	return run, nil
}

// embedTexts embeds the normalized description of every book, reusing vectors
// from prev whose text is unchanged. Books with a blank description are skipped.
func (s *Synchronizer) embedTexts(ctx context.Context, books []models.BookText, prev map[int64]embeddedText) (map[int64]embeddedText, error) {
	out := make(map[int64]embeddedText, len(books))
	var ids []int64
	var texts []string
	for _, b := range books {
		text := NormalizeDescription(b.Description)
		if text == "" {
			continue
		}
		if e, ok := prev[b.ID]; ok && e.text == text {
			out[b.ID] = e
			continue
		}
		ids = append(ids, b.ID)
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return out, nil
	}
	if prev != nil {
		s.logger.Debug("embedding books changed during rebuild", zap.Int("books", len(texts)))
	}
	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	for i, id := range ids {
		out[id] = embeddedText{text: texts[i], vec: vecs[i]}
	}
	return out, nil
}

// refreshCachedEmbeddings stores the indexed vectors on their rows and clears
// the column for every book that is no longer indexed.
func (s *Synchronizer) refreshCachedEmbeddings(ctx context.Context, ids []int64, vecs [][]float32) error {
	cache := make(map[int64][]float32, len(ids))
	for i, id := range ids {
		cache[id] = vecs[i]
	}
	embedded, err := s.store.ListEmbedded(ctx)
	if err != nil {
		return err
	}
	for _, id := range embedded {
		if _, ok := cache[id]; !ok {
			cache[id] = nil
		}
	}
	return s.store.UpdateEmbeddings(ctx, cache)
}

// Close cancels background rebuilds and waits for them to finish.
func (s *Synchronizer) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// Stats returns stats for the current snapshot.
func (s *Synchronizer) Stats() models.IndexStats {
	st := models.IndexStats{
		Type:           s.cfg.IndexType,
		Path:           s.cfg.IndexPath,
		FAISSAvailable: vector.IsFAISSAvailable(),
	}
	if snap := s.Current(); snap != nil {
		st.Entries = snap.Index.Size()
		st.Built = snap.Built
		st.LoadedAt = snap.LoadedAt
	}
	return st
}
