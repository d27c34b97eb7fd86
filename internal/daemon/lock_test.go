package daemon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceLockLockUnlock(t *testing.T) {
	dir := t.TempDir()
	lock := NewInstanceLock(dir)

	require.NoError(t, lock.Lock())
	assert.FileExists(t, lock.Path())
	require.NoError(t, lock.Unlock())
}

func TestInstanceLockUnlockWithoutLockIsNoop(t *testing.T) {
	lock := NewInstanceLock(t.TempDir())
	assert.NoError(t, lock.Unlock())
}

func TestInstanceLockTryLockFailsWhenHeld(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewInstanceLock(dir)
	require.NoError(t, lock1.Lock())
	defer lock1.Unlock()

	lock2 := NewInstanceLock(dir)
	acquired, err := lock2.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, lock2.IsLocked())
}

func TestInstanceLockPath(t *testing.T) {
	lock := NewInstanceLock("/some/dir")
	assert.Equal(t, filepath.Join("/some/dir", ".meridiand.lock"), lock.Path())
}

func TestInstanceLockIsLockedReflectsState(t *testing.T) {
	lock := NewInstanceLock(t.TempDir())
	assert.False(t, lock.IsLocked())

	require.NoError(t, lock.Lock())
	assert.True(t, lock.IsLocked())

	require.NoError(t, lock.Unlock())
	assert.False(t, lock.IsLocked())
}
