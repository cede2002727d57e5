package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	julieerrors "github.com/juliehq/julie/internal/errors"
)

// WriteLock is the process-level expression of the one-writer rule: any
// write-capable process (index, serve) holds an advisory flock on
// the workspace's `.julie/` tree for its lifetime. A second writer fails
// fast instead of interleaving SQLite writers.
type WriteLock struct {
	fl     *flock.Flock
	locked bool
}

// AcquireWriteLock takes the workspace write lock non-blocking. A held
// lock returns ErrCodeStoreLocked immediately; waiting would only hide
// the fact that two write-capable processes were pointed at one
// workspace.
func AcquireWriteLock(dataDir string) (*WriteLock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}

	fl := flock.New(filepath.Join(dataDir, "workspace.lock"))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !acquired {
		return nil, julieerrors.New(julieerrors.ErrCodeStoreLocked,
			"workspace locked by another process", nil).
			WithDetail("lock_path", fl.Path()).
			WithSuggestion("stop the other julie process (index or serve) and retry")
	}

	return &WriteLock{fl: fl, locked: true}, nil
}

// Release drops the lock. Safe to call more than once.
func (l *WriteLock) Release() error {
	if l == nil || !l.locked {
		return nil
	}
	l.locked = false
	return l.fl.Unlock()
}
