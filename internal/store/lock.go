package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
)

// BuildLock serializes builds of one container across processes.
// Readers never take it: Save replaces the container atomically.
type BuildLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewBuildLock creates a lock stored beside the container in dataDir.
func NewBuildLock(dataDir string) *BuildLock {
	p := filepath.Join(dataDir, LockFileName)
	return &BuildLock{path: p, flock: flock.New(p)}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *BuildLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	if !ok {
		return tkerrors.IndexLocked(l.path)
	}
	l.locked = true
	return nil
}

// TryLock acquires the lock without blocking. It returns an IndexLocked error
// when another process holds it.
func (l *BuildLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	if !ok {
		return tkerrors.IndexLocked(l.path)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked BuildLock is a no-op.
func (l *BuildLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release build lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *BuildLock) Path() string { return l.path }
