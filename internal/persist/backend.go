// Package persist stores the serialized document. Backends deal in raw bytes;
// decoding and schema migration happen in the layers above.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound reports that nothing has been persisted yet.
var ErrNotFound = errors.New("persist: document not found")

// Backend reads and writes one whole document.
type Backend interface {
	// Load returns the current document bytes, or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the document with data. There are no partial writes.
	Save(ctx context.Context, data []byte) error

	// Preserve copies the current bytes aside before they are overwritten and
	// returns where they went. It returns "" when there is nothing to keep.
	Preserve(ctx context.Context) (string, error)

	// Lock acquires the exclusive write lock, blocking until it is held or
	// ctx is done. The returned function releases it.
	Lock(ctx context.Context) (func(), error)

	// Location describes where the document lives, for logs and CLI output.
	Location() string

	Close() error
}

// Kinds of backend accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Options configures Open.
type Options struct {
	Kind string
	Path string

	// HistoryLimit caps the revisions kept by the SQLite backend. Zero keeps
	// every revision.
	HistoryLimit int

	Now func() time.Time
}

// Open returns the backend named by opts.Kind. An empty kind means file.
func Open(opts Options) (Backend, error) {
	switch opts.Kind {
	case "", KindFile:
		if opts.Path == "" {
			return nil, errors.New("open file backend: empty path")
		}
		b := NewFileBackend(opts.Path)
		if opts.Now != nil {
			b.now = opts.Now
		}
		return b, nil
	case KindSQLite:
		return OpenSQLite(opts.Path, SQLiteOptions{HistoryLimit: opts.HistoryLimit, Now: opts.Now})
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("open backend: unknown kind %q", opts.Kind)
	}
}

// stampLayout names preserved copies so they sort by time.
const stampLayout = "20060102T150405Z"

// semaphore is a context-aware in-process mutex.
type semaphore chan struct{}

func newSemaphore() semaphore {
	return make(semaphore, 1)
}

func (s semaphore) acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s semaphore) release() {
	<-s
}

// lockBoth takes the in-process semaphore and then the advisory file lock.
func lockBoth(ctx context.Context, sem semaphore, fl *FileLock) (func(), error) {
	if err := sem.acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if err := fl.Lock(ctx); err != nil {
		sem.release()
		return nil, fmt.Errorf("acquire file lock %s: %w", fl.Path(), err)
	}
	return func() {
		_ = fl.Unlock()
		sem.release()
	}, nil
}
