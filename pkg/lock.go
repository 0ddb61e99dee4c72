package pkg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/commonarch/system/internal/paths"
)

// ErrLockHeld is returned when a lock cannot be acquired because another
// process holds it.
var ErrLockHeld = errors.New("lock held by another process")

// FileLock represents a file-based lock using flock.
type FileLock struct {
	file *os.File
	path string
}

// acquireLock opens (creating if necessary) lockPath and attempts a
// non-blocking flock of the given type.
func acquireLock(lockPath string, lockType int) (*FileLock, error) {
	dir := filepath.Dir(lockPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), lockType|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", lockPath, err)
	}

	return &FileLock{file: file, path: lockPath}, nil
}

// AcquireExclusive acquires an exclusive lock on the given path. Returns
// ErrLockHeld if the lock is already held by another process.
func AcquireExclusive(lockPath string) (*FileLock, error) {
	return acquireLock(lockPath, syscall.LOCK_EX)
}

// AcquireShared acquires a shared lock on the given path. Multiple processes
// may hold shared locks simultaneously; an exclusive holder blocks them all.
func AcquireShared(lockPath string) (*FileLock, error) {
	return acquireLock(lockPath, syscall.LOCK_SH)
}

// Release releases the lock and closes the underlying file. Safe to call
// more than once.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path of the lock file.
func (l *FileLock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// AcquireSystemLock acquires the process-wide exclusive lock (I1) guarding
// the rebase pipeline. It is held for the entire orchestrator run; the
// update-check daemon never calls this directly, since it only ever spawns
// a `system update` subprocess that acquires the lock itself.
func AcquireSystemLock() (*FileLock, error) {
	lock, err := acquireLock(paths.SystemLockFile, syscall.LOCK_EX)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, fmt.Errorf("an update may be progressing in the background")
		}
		return nil, err
	}
	return lock, nil
}
