package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_LoadMissing(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "roster.json"))

	_, err := b.Load(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileBackend_SaveCreatesDirectoryAndReplaces(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "roster.json")
	b := NewFileBackend(path)

	require.NoError(t, b.Save(ctx, []byte("first")))
	require.NoError(t, b.Save(ctx, []byte("second")))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file left behind")
	assert.Equal(t, path, b.Location())
}

func TestFileBackend_LoadReadErrorIsNotNotFound(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(dir) // a directory cannot be read as a file

	_, err := b.Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFileBackend_Preserve(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roster.json")
	b := NewFileBackend(path)
	b.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }

	loc, err := b.Preserve(ctx)
	require.NoError(t, err)
	assert.Empty(t, loc)

	require.NoError(t, os.WriteFile(path, []byte("{corrupt"), 0o644))
	loc, err = b.Preserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, path+".corrupt-20250314T093000Z", loc)

	kept, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "{corrupt", string(kept))

	original, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{corrupt", string(original))
}

func TestFileBackend_LockSerializes(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(filepath.Join(t.TempDir(), "roster.json"))

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := b.Lock(ctx)
			if err != nil {
				t.Errorf("Lock() failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestFileBackend_LockHonoursContext(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "roster.json"))

	unlock, err := b.Lock(context.Background())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	_, err := b.Load(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	loc, err := b.Preserve(ctx)
	require.NoError(t, err)
	assert.Empty(t, loc)

	require.NoError(t, b.Save(ctx, []byte("doc")))
	assert.Equal(t, 1, b.Saves())

	got, err := b.Load(ctx)
	require.NoError(t, err)
	got[0] = 'X'
	again, _ := b.Load(ctx)
	assert.Equal(t, "doc", string(again))

	loc, err = b.Preserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory:preserved/1", loc)
	assert.Equal(t, [][]byte{[]byte("doc")}, b.Preserved())

	boom := errors.New("disk full")
	b.FailSaves(boom)
	assert.ErrorIs(t, b.Save(ctx, []byte("x")), boom)
	b.FailSaves(nil)

	b.Set([]byte("seeded"))
	data, ok := b.Bytes()
	assert.True(t, ok)
	assert.Equal(t, "seeded", string(data))
	assert.Equal(t, 1, b.Saves())
}
