package tokenstore

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_AcquireRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")

	lock, err := acquireFileLock(target)
	require.NoError(t, err)

	_, err = os.Stat(target + ".lock")
	require.NoError(t, err, "lock file should exist while held")

	require.NoError(t, lock.release())

	_, err = os.Stat(target + ".lock")
	assert.True(t, os.IsNotExist(err), "lock file should be removed after release")
}

func TestFileLock_SerializesGoroutines(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")

	const goroutines = 8
	const iterations = 4

	var (
		inside  atomic.Int32
		overlap atomic.Bool
		done    atomic.Int32
		wg      sync.WaitGroup
	)

	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lock, err := acquireFileLock(target)
				if err != nil {
					t.Errorf("acquire: %v", err)
					return
				}
				if inside.Add(1) > 1 {
					overlap.Store(true)
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				done.Add(1)
				if err := lock.release(); err != nil {
					t.Errorf("release: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two holders inside the lock at once")
	assert.Equal(t, int32(goroutines*iterations), done.Load())
}

func TestFileLock_RemovesStaleLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")
	lockPath := target + ".lock"

	require.NoError(t, os.WriteFile(lockPath, []byte("12345"), 0o600))
	old := time.Now().Add(-staleLockAge - 5*time.Second)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	lock, err := acquireFileLock(target)
	require.NoError(t, err)
	defer lock.release()

	assert.NotNil(t, lock.handle)
}

func TestFileLock_TimesOutOnFreshLock(t *testing.T) {
	origAttempts, origDelay := lockAttempts, lockRetryDelay
	lockAttempts, lockRetryDelay = 5, 10*time.Millisecond
	defer func() { lockAttempts, lockRetryDelay = origAttempts, origDelay }()

	target := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(target+".lock", nil, 0o600))

	_, err := acquireFileLock(target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for file lock")
}

func TestFileLock_DoubleRelease(t *testing.T) {
	target := filepath.Join(t.TempDir(), "tokens.json")

	lock, err := acquireFileLock(target)
	require.NoError(t, err)

	require.NoError(t, lock.release())
	assert.Error(t, lock.release(), "second release should report the missing lock file")
}
