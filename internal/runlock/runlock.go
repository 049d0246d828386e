// Package runlock keeps two sync runs from working on the same directory.
package runlock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/openmined/docsync/internal/utils"
)

var ErrLocked = errors.New("another sync is running for this directory")

type Lock struct {
	baseDir string
	flock   *flock.Flock
}

// New returns an unheld lock for baseDir. The lock file lives in lockDir,
// named after a digest of the absolute base dir.
func New(lockDir, baseDir string) (*Lock, error) {
	abs, err := utils.ResolvePath(baseDir)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(abs))
	name := hex.EncodeToString(sum[:8]) + ".lock"
	return &Lock{
		baseDir: abs,
		flock:   flock.New(filepath.Join(lockDir, name)),
	}, nil
}

// Acquire takes the lock without blocking.
func (l *Lock) Acquire() error {
	if err := utils.EnsureParent(l.flock.Path()); err != nil {
		return fmt.Errorf("lock dir: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.baseDir, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, l.baseDir)
	}
	return nil
}

// Release drops the lock and removes the lock file. Releasing an unheld
// lock is a no-op.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.baseDir, err)
	}
	if err := os.Remove(l.flock.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Lock) Path() string { return l.flock.Path() }
