package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockRetryDelay = 50 * time.Millisecond
	// mutateLockTimeout bounds how long an incremental update waits for
	// another writer, such as an offline rebuild, to release the index file.
	mutateLockTimeout = 30 * time.Second
)

// fileLock is an advisory lock on "<index path>.lock" shared by every process
// that writes the index file: the server and offline rebuilds. Callers hold
// Synchronizer.mu while they use it, so one handle per process is enough.
type fileLock struct {
	path string
	fl   *flock.Flock
}

func newFileLock(indexPath string) *fileLock {
	if indexPath == "" {
		return &fileLock{}
	}
	p := indexPath + ".lock"
	return &fileLock{path: p, fl: flock.New(p)}
}

// acquire blocks until the lock is held or ctx is done. Readers pass
// shared=true; load-mutate-save and rebuild swaps take it exclusively.
func (l *fileLock) acquire(ctx context.Context, shared bool) (release func(), err error) {
	if l.fl == nil {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	var ok bool
	if shared {
		ok, err = l.fl.TryRLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = l.fl.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", l.path, context.Cause(ctx))
	}
	return func() { _ = l.fl.Unlock() }, nil
}
