package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileBackend keeps the document in a single JSON file. Writes go to a
// temporary file that is renamed over the original.
type FileBackend struct {
	path string
	lock *FileLock
	sem  semaphore
	now  func() time.Time
}

// NewFileBackend returns a backend for the file at path. The advisory lock
// lives next to it at path + ".lock".
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{
		path: path,
		lock: NewFileLock(path + ".lock"),
		sem:  newSemaphore(),
		now:  time.Now,
	}
}

// Load reads the file. A missing file is ErrNotFound.
func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

// Save atomically replaces the file with data.
func (b *FileBackend) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", b.path, err)
	}
	return nil
}

// Preserve copies the current file to path + ".corrupt-<stamp>".
func (b *FileBackend) Preserve(ctx context.Context) (string, error) {
	data, err := b.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	dest := b.path + ".corrupt-" + b.now().UTC().Format(stampLayout)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("preserve %s: %w", b.path, err)
	}
	return dest, nil
}

// Lock serializes writers in this process and across processes.
func (b *FileBackend) Lock(ctx context.Context) (func(), error) {
	return lockBoth(ctx, b.sem, b.lock)
}

// Location returns the file path.
func (b *FileBackend) Location() string {
	return b.path
}

// Close is a no-op; the file is only open during calls.
func (b *FileBackend) Close() error {
	return nil
}
