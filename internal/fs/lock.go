package fs

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryLockFile when a conflicting lock is
// already held on the file.
var ErrWouldBlock = errors.New("fs: lock would block")

// LockType selects shared (read) vs. exclusive (write) flock semantics.
type LockType int

const (
	SharedLock    LockType = unix.LOCK_SH
	ExclusiveLock LockType = unix.LOCK_EX
)

// Lock is a held advisory flock on an open file.
//
// Adapted from the teacher's own Locker/Lock (internal/fs/lock.go in
// the untrimmed copy), which flocks a dedicated sibling lock file and
// guards against the lock file being renamed out from under an
// in-progress acquisition. This version is narrower: it flocks the
// data file's own descriptor directly, with no sibling lock file and
// no check that path still names the locked inode. Raw-dump files are
// rewritten in place by packedhash's WriteRawFile under this lock
// rather than renamed, so the writer and its readers lock the same
// inode.
// It also uses golang.org/x/sys/unix's Flock instead of the teacher's
// syscall.Flock, matching this project's general preference for
// golang.org/x/sys/unix over raw syscall calls.
type Lock struct {
	mu   sync.Mutex
	file *os.File
}

// LockFile opens path with flag/perm and acquires a blocking advisory
// flock of type lt on the resulting descriptor. The caller must call
// Close on the returned Lock to release both the lock and the file.
func LockFile(path string, lt LockType, flag int, perm os.FileMode) (*Lock, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("fs: opening %s for locking: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), int(lt)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("fs: flock %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// TryLockFile behaves like LockFile but never blocks: it returns
// ErrWouldBlock immediately if another process already holds a
// conflicting lock on the file.
func TryLockFile(path string, lt LockType, flag int, perm os.FileMode) (*Lock, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, fmt.Errorf("fs: opening %s for locking: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), int(lt)|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("fs: flock %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// File returns the locked file, e.g. to read its contents or mmap a
// region of it while the lock is held.
func (l *Lock) File() *os.File {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file
}

// Close releases the lock and closes the underlying file descriptor.
// Close is idempotent.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return fmt.Errorf("fs: unlocking: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("fs: closing locked file: %w", closeErr)
	}
	return nil
}
