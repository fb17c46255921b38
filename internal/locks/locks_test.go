package locks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratum-ci/stratum/internal/locks"
	"github.com/stratum-ci/stratum/pkg/log"
)

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	l := log.New()
	workingDir := t.TempDir()

	lock, err := locks.Acquire(context.Background(), l, workingDir)
	require.NoError(t, err)
	assert.True(t, lock.Locked())

	lock.Release(l)
	assert.False(t, lock.Locked())

	// Releasing twice must be a no-op.
	lock.Release(l)
}

func TestAcquireBlocksSecondHolder(t *testing.T) {
	t.Parallel()

	l := log.New()
	workingDir := t.TempDir()

	lock, err := locks.Acquire(context.Background(), l, workingDir)
	require.NoError(t, err)

	defer lock.Release(l)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = locks.Acquire(ctx, l, workingDir)
	require.Error(t, err)
}

func TestAcquireMissingWorkingDir(t *testing.T) {
	t.Parallel()

	l := log.New()
	workingDir := t.TempDir() + "/nested/layer"

	_, err := locks.Acquire(context.Background(), l, workingDir)
	require.Error(t, err)

	// The directory must not appear as a side effect of locking.
	assert.NoDirExists(t, workingDir)
}
