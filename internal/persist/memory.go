package persist

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBackend holds the document in memory. Used by tests and the scenario
// harness.
type MemoryBackend struct {
	mu        sync.Mutex
	data      []byte
	exists    bool
	saves     int
	preserved [][]byte
	saveErr   error
	sem       semaphore
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sem: newSemaphore()}
}

// Load returns a copy of the stored bytes, or ErrNotFound.
func (b *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.exists {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b.data...), nil
}

// Save replaces the stored bytes, or returns the error set by FailSaves.
func (b *MemoryBackend) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.saveErr != nil {
		return b.saveErr
	}
	b.data = append([]byte(nil), data...)
	b.exists = true
	b.saves++
	return nil
}

// Preserve keeps a copy of the current bytes.
func (b *MemoryBackend) Preserve(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.exists {
		return "", nil
	}
	b.preserved = append(b.preserved, append([]byte(nil), b.data...))
	return fmt.Sprintf("memory:preserved/%d", len(b.preserved)), nil
}

// Lock serializes writers.
func (b *MemoryBackend) Lock(ctx context.Context) (func(), error) {
	if err := b.sem.acquire(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return b.sem.release, nil
}

// Location returns "memory".
func (b *MemoryBackend) Location() string {
	return "memory"
}

// Close is a no-op.
func (b *MemoryBackend) Close() error {
	return nil
}

// Set replaces the stored bytes without counting a save.
func (b *MemoryBackend) Set(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append([]byte(nil), data...)
	b.exists = true
}

// Bytes returns the stored bytes and whether anything is stored.
func (b *MemoryBackend) Bytes() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...), b.exists
}

// Saves returns how many successful saves happened.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// Preserved returns the copies kept by Preserve.
func (b *MemoryBackend) Preserved() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.preserved...)
}

// FailSaves makes every later Save return err. Pass nil to clear.
func (b *MemoryBackend) FailSaves(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveErr = err
}
