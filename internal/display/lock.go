package display

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile is a held advisory lock guarding one socket name. The flock
// is tied to the open descriptor, so closing the file releases it even
// if the process dies without cleanup.
type lockFile struct {
	f    *os.File
	path string
}

// acquireLock opens or creates the lock file (owner read/write only)
// and takes a non-blocking exclusive flock on it. Contention surfaces
// immediately as OpLockAcquire wrapping ErrLocked; the call never
// waits for the lock.
func acquireLock(path string) (*lockFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, &Error{Op: OpLockOpen, Path: path, Err: err}
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			err = ErrLocked
		}
		return nil, &Error{Op: OpLockAcquire, Path: path, Err: err}
	}

	return &lockFile{f: f, path: path}, nil
}

// release drops the lock by closing the descriptor. Safe to call more
// than once.
func (l *lockFile) release() {
	if l.f != nil {
		l.f.Close()
		l.f = nil
	}
}

// LockHeld reports whether a live process holds the lock for the name
// inside dir. The probe never creates or removes anything: a missing
// lock file means no holder, and a present one is tested with a
// non-blocking flock that is dropped immediately when it succeeds.
func LockHeld(dir, name string) (bool, error) {
	_, lockPath := socketPaths(dir, name)

	f, err := os.OpenFile(lockPath, os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &Error{Op: OpLockOpen, Path: lockPath, Err: err}
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return true, nil
		}
		return false, &Error{Op: OpLockAcquire, Path: lockPath, Err: err}
	}
	// Acquired, so nobody held it; closing the descriptor drops it again
	return false, nil
}
