// Package locks guards each layer working directory with a file lock so that
// two stratum processes on the same machine never run terraform in the same
// directory at once. State-level locking across machines belongs to the Azure
// backend; this is only the local guard.
package locks

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/pkg/log"
)

const (
	lockFileName = ".stratum.lock"

	retryDelay = 200 * time.Millisecond
)

// RunLock holds the file lock for one working directory.
type RunLock struct {
	*flock.Flock
}

// Acquire takes the lock for a working directory, waiting until it becomes
// free or the context expires. The directory must already exist; a layer
// path that points nowhere is a configuration error the caller reports, not
// something to paper over by creating it.
func Acquire(ctx context.Context, l log.Logger, workingDir string) (*RunLock, error) {
	path := filepath.Join(workingDir, lockFileName)
	lock := flock.New(path)

	l.Tracef("Acquiring lock file %s", path)

	locked, err := lock.TryLockContext(ctx, retryDelay)
	if err != nil {
		return nil, errors.WithStackTraceAndPrefix(err, "could not acquire lock file %q", path)
	}

	if !locked {
		return nil, errors.Errorf("lock file %q is held by another process", path)
	}

	return &RunLock{lock}, nil
}

// Release drops the lock. Safe to call on an already released lock.
func (lock *RunLock) Release(l log.Logger) {
	if !lock.Locked() {
		return
	}

	l.Tracef("Releasing lock file %s", lock.Path())

	if err := lock.Unlock(); err != nil {
		l.Warnf("Could not release lock file %s: %v", lock.Path(), err)
	}
}
