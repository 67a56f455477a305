// Package display binds display server sockets following the Wayland
// discovery convention: numbered names inside XDG_RUNTIME_DIR, each
// guarded by a .lock file so that only one process on the system owns
// a given name at a time.
package display

import (
	"errors"
	"fmt"
	"iter"
	"net"
	"os"
	"sync"
)

// maxSocketPathLen is the portable ceiling for unix socket paths
// (104 bytes on the BSDs, 108 on Linux; the smaller bound applies)
const maxSocketPathLen = 104

// Socket is a bound, listening display socket. It owns exactly two
// filesystem artifacts inside the runtime directory, the socket file
// at BindPath and the lock file at LockPath, plus the held lock that
// keeps the name exclusive until Close.
type Socket struct {
	name     string
	bindPath string
	lockPath string

	listener net.Listener
	lock     *lockFile

	closeOnce sync.Once
}

// ListenAuto binds the first free conventional name inside dir
func ListenAuto(dir string) (*Socket, error) {
	return ListenCandidates(dir, Candidates())
}

// ListenCandidates walks the candidate names in order and binds the
// first one whose lock can be acquired. A name owned by another
// process only advances the walk; any other failure aborts it, since
// open and bind errors are environmental rather than contention.
// Exhausting the sequence yields ErrNoAvailableSocket.
func ListenCandidates(dir string, names iter.Seq[string]) (*Socket, error) {
	for name := range names {
		s, err := Listen(dir, name)
		if err == nil {
			return s, nil
		}

		var derr *Error
		if errors.As(err, &derr) && derr.Op == OpLockAcquire {
			continue
		}

		return nil, err
	}

	return nil, ErrNoAvailableSocket
}

// Listen binds the socket with the given name inside dir. The name's
// lock is acquired first; holding it proves no live process owns the
// name, so a leftover socket file there is stale and safe to remove
// before binding.
func Listen(dir, name string) (*Socket, error) {
	bindPath, lockPath := socketPaths(dir, name)

	if len(bindPath) >= maxSocketPathLen {
		return nil, &Error{Op: OpBind, Path: bindPath, Err: fmt.Errorf("path exceeds %d bytes", maxSocketPathLen-1)}
	}

	lock, err := acquireLock(lockPath)
	if err != nil {
		return nil, err
	}

	// Stale socket from a crashed previous owner
	os.Remove(bindPath)

	listener, err := net.Listen("unix", bindPath)
	if err != nil {
		lock.release()
		return nil, &Error{Op: OpBind, Path: bindPath, Err: err}
	}

	// Owner only, matching the lock file
	if err := os.Chmod(bindPath, 0600); err != nil {
		listener.Close()
		lock.release()
		return nil, &Error{Op: OpBind, Path: bindPath, Err: err}
	}

	return &Socket{
		name:     name,
		bindPath: bindPath,
		lockPath: lockPath,
		listener: listener,
		lock:     lock,
	}, nil
}

// Name returns the logical socket name, e.g. "wayland-1"
func (s *Socket) Name() string { return s.name }

// BindPath returns the filesystem location of the socket file
func (s *Socket) BindPath() string { return s.bindPath }

// LockPath returns the filesystem location of the lock file
func (s *Socket) LockPath() string { return s.lockPath }

// Addr returns the listener's address
func (s *Socket) Addr() net.Addr { return s.listener.Addr() }

// Accept blocks until a peer connects, then hands the connection off
// whole to the caller. It never retries; after Close it fails with an
// error satisfying errors.Is(err, net.ErrClosed).
func (s *Socket) Accept() (net.Conn, error) {
	conn, err := s.listener.Accept()
	if err != nil {
		return nil, &Error{Op: OpAccept, Path: s.bindPath, Err: err}
	}
	return conn, nil
}

// Close shuts the listener down, removes the socket and lock files and
// releases the lock. Cleanup is best-effort and runs at most once; the
// name is immediately reusable afterwards. Close never returns an
// error.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.listener.Close()
		os.Remove(s.bindPath)
		os.Remove(s.lockPath)
		s.lock.release()
	})
	return nil
}
