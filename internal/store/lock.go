package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ArtifactLockName is the lock file guarding an artifact directory.
const ArtifactLockName = ".artifacts.lock"

const lockRetryDelay = 50 * time.Millisecond

// ArtifactLock provides cross-process locking of an artifact directory using
// gofrs/flock. Readers share the lock; a writer holds it exclusively.
type ArtifactLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewArtifactLock creates a lock for dir at <dir>/.artifacts.lock.
func NewArtifactLock(dir string) *ArtifactLock {
	lockPath := filepath.Join(dir, ArtifactLockName)
	return &ArtifactLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// RLock acquires a shared lock, waiting until ctx is done.
func (l *ArtifactLock) RLock(ctx context.Context) error {
	return l.acquire(ctx, l.flock.TryRLockContext)
}

// Lock acquires an exclusive lock, waiting until ctx is done.
func (l *ArtifactLock) Lock(ctx context.Context) error {
	return l.acquire(ctx, l.flock.TryLockContext)
}

func (l *ArtifactLock) acquire(ctx context.Context, try func(context.Context, time.Duration) (bool, error)) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return amanerrors.New(amanerrors.ErrCodeArtifactLock, "failed to create lock directory", err)
	}

	acquired, err := try(ctx, lockRetryDelay)
	if err != nil {
		return amanerrors.New(amanerrors.ErrCodeArtifactLock,
			fmt.Sprintf("failed to acquire %s", l.path), err)
	}
	if !acquired {
		return amanerrors.New(amanerrors.ErrCodeArtifactLock,
			fmt.Sprintf("timed out waiting for %s", l.path), ctx.Err())
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked ArtifactLock.
func (l *ArtifactLock) Unlock() error {
	if !l.locked {
		return nil
	}

	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *ArtifactLock) Path() string {
	return l.path
}
