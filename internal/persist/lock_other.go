//go:build !unix

package persist

import "context"

// FileLock is a no-op on platforms without flock(2). Writers in one process
// are still serialized by the backend's in-process lock.
type FileLock struct {
	path string
}

// NewFileLock creates a FileLock for the given path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryLock always succeeds.
func (l *FileLock) TryLock() (bool, error) {
	return true, nil
}

// Lock always succeeds unless ctx is already done.
func (l *FileLock) Lock(ctx context.Context) error {
	return ctx.Err()
}

// Unlock is a no-op.
func (l *FileLock) Unlock() error {
	return nil
}
