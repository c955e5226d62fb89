package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Lock tuning. Variables so tests can shorten the waits.
var (
	lockAttempts   = 50
	lockRetryDelay = 100 * time.Millisecond
	staleLockAge   = 30 * time.Second
)

// fileLock is an exclusive, cross-process lock on a token file, held as a
// sibling "<file>.lock" created with O_EXCL.
type fileLock struct {
	handle *os.File
	path   string
}

// acquireFileLock blocks until the lock for target is held or the retry
// deadline passes. Lock files older than staleLockAge are treated as left
// behind by a crashed process and removed.
func acquireFileLock(target string) (*fileLock, error) {
	path := target + ".lock"

	for range lockAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			return &fileLock{handle: f, path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to acquire file lock: %w", err)
		}

		if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove stale lock file %s: %w", path, rmErr)
			}
			continue
		}

		time.Sleep(lockRetryDelay)
	}

	return nil, fmt.Errorf(
		"timeout waiting for file lock after %v",
		time.Duration(lockAttempts)*lockRetryDelay,
	)
}

// release drops the lock. Releasing twice returns the remove error.
func (l *fileLock) release() error {
	if l.handle != nil {
		_ = l.handle.Close()
		l.handle = nil
	}
	return os.Remove(l.path)
}
