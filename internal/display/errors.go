package display

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by socket selection
var (
	// ErrRuntimeDirInvalid means XDG_RUNTIME_DIR is unset or not an
	// absolute path
	ErrRuntimeDirInvalid = errors.New("XDG_RUNTIME_DIR not set or invalid")

	// ErrNoAvailableSocket means every candidate name was already owned
	// by another process
	ErrNoAvailableSocket = errors.New("no available socket candidates")

	// ErrLocked means another live process holds the lock for the name
	ErrLocked = errors.New("socket name locked by another process")
)

// Op identifies the low-level operation recorded in an Error
type Op string

// Operations that can fail while establishing or serving a socket
const (
	OpLockOpen    Op = "open lock file"
	OpLockAcquire Op = "acquire lock"
	OpBind        Op = "bind socket"
	OpAccept      Op = "accept"
)

// Error reports a failed socket operation and the path involved
type Error struct {
	Op   Op
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *Error) Unwrap() error { return e.Err }
