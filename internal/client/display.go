package client

import (
	"net"
	"os"
	"path/filepath"
	"time"

	"waysock.dev/go/waysock/internal/display"
)

// DefaultDisplay is the name clients fall back to when neither an
// explicit name nor WAYLAND_DISPLAY is set
const DefaultDisplay = "wayland-0"

const probeTimeout = time.Second

// ResolveDisplay applies the client-side naming rules: an explicit
// name wins, then WAYLAND_DISPLAY, then the default
func ResolveDisplay(name string) string {
	if name == "" {
		name = os.Getenv("WAYLAND_DISPLAY")
	}
	if name == "" {
		name = DefaultDisplay
	}
	return name
}

// DialDisplay connects to a display socket. Relative names resolve
// inside dir, or the conventional runtime directory when dir is empty.
// An absolute name is dialed as-is and dir is ignored.
func DialDisplay(dir, name string) (net.Conn, error) {
	name = ResolveDisplay(name)

	if filepath.IsAbs(name) {
		return net.DialTimeout("unix", name, dialTimeout)
	}

	if dir == "" {
		var err error
		dir, err = display.RuntimeDir()
		if err != nil {
			return nil, err
		}
	}

	return net.DialTimeout("unix", filepath.Join(dir, name), dialTimeout)
}

// ProbeState classifies a display name's current condition
type ProbeState int

const (
	// ProbeFree means nothing owns the name and no artifacts block it
	ProbeFree ProbeState = iota
	// ProbeStale means artifacts remain but their owner is gone
	ProbeStale
	// ProbeLive means a process owns the name right now
	ProbeLive
)

func (s ProbeState) String() string {
	switch s {
	case ProbeFree:
		return "free"
	case ProbeStale:
		return "stale"
	case ProbeLive:
		return "live"
	default:
		return "unknown"
	}
}

// ProbeName reports whether a display name is live, stale, or free
// without disturbing its artifacts. A name is live when its socket
// accepts a connection or its lock is held, stale when artifacts
// remain with no owner, and free otherwise.
func ProbeName(dir, name string) (ProbeState, error) {
	bindPath, lockPath := display.SocketPaths(dir, name)

	conn, err := net.DialTimeout("unix", bindPath, probeTimeout)
	if err == nil {
		conn.Close()
		return ProbeLive, nil
	}

	held, err := display.LockHeld(dir, name)
	if err != nil {
		return ProbeFree, err
	}
	if held {
		// Lock held with nothing accepting: the owner is alive but not
		// serving, perhaps mid-startup. The name is not claimable.
		return ProbeLive, nil
	}

	if _, err := os.Stat(bindPath); err == nil {
		return ProbeStale, nil
	}
	if _, err := os.Stat(lockPath); err == nil {
		return ProbeStale, nil
	}

	return ProbeFree, nil
}
