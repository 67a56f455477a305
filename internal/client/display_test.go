package client

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"waysock.dev/go/waysock/internal/display"
)

func TestResolveDisplay(t *testing.T) {
	t.Setenv("WAYLAND_DISPLAY", "")

	if got := ResolveDisplay("wayland-3"); got != "wayland-3" {
		t.Errorf("explicit name: got %q, want wayland-3", got)
	}
	if got := ResolveDisplay(""); got != DefaultDisplay {
		t.Errorf("default: got %q, want %q", got, DefaultDisplay)
	}

	t.Setenv("WAYLAND_DISPLAY", "wayland-7")
	if got := ResolveDisplay(""); got != "wayland-7" {
		t.Errorf("env fallback: got %q, want wayland-7", got)
	}
	if got := ResolveDisplay("wayland-2"); got != "wayland-2" {
		t.Errorf("explicit name over env: got %q, want wayland-2", got)
	}
}

func TestDialDisplay(t *testing.T) {
	dir := t.TempDir()

	sock, err := display.Listen(dir, "wayland-1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sock.Close()

	conn, err := DialDisplay(dir, "wayland-1")
	if err != nil {
		t.Fatalf("DialDisplay: %v", err)
	}
	conn.Close()
}

func TestDialDisplayEnvName(t *testing.T) {
	dir := t.TempDir()

	sock, err := display.Listen(dir, "wayland-5")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sock.Close()

	t.Setenv("WAYLAND_DISPLAY", "wayland-5")
	conn, err := DialDisplay(dir, "")
	if err != nil {
		t.Fatalf("DialDisplay via WAYLAND_DISPLAY: %v", err)
	}
	conn.Close()
}

func TestDialDisplayAbsolutePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// dir is ignored when the name is absolute
	conn, err := DialDisplay(t.TempDir(), path)
	if err != nil {
		t.Fatalf("DialDisplay absolute: %v", err)
	}
	conn.Close()
}

func TestDialDisplayNoRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("WAYLAND_DISPLAY", "")

	if _, err := DialDisplay("", "wayland-1"); err == nil {
		t.Fatal("DialDisplay succeeded without a runtime directory")
	}
}

func TestProbeName(t *testing.T) {
	dir := t.TempDir()

	state, err := ProbeName(dir, "wayland-1")
	if err != nil {
		t.Fatalf("probe empty name: %v", err)
	}
	if state != ProbeFree {
		t.Errorf("empty name: got %v, want %v", state, ProbeFree)
	}

	sock, err := display.Listen(dir, "wayland-1")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	state, err = ProbeName(dir, "wayland-1")
	if err != nil {
		t.Fatalf("probe bound name: %v", err)
	}
	if state != ProbeLive {
		t.Errorf("bound name: got %v, want %v", state, ProbeLive)
	}

	sock.Close()
	state, err = ProbeName(dir, "wayland-1")
	if err != nil {
		t.Fatalf("probe after close: %v", err)
	}
	if state != ProbeFree {
		t.Errorf("after clean close: got %v, want %v", state, ProbeFree)
	}
}

func TestProbeNameStaleSocketFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wayland-2")

	// A dead socket file with no listener behind it
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.SetUnlinkOnClose(false)
	ln.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("dead socket file missing: %v", err)
	}

	state, err := ProbeName(dir, "wayland-2")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if state != ProbeStale {
		t.Errorf("dead socket: got %v, want %v", state, ProbeStale)
	}
}

func TestProbeNameStaleLockFile(t *testing.T) {
	dir := t.TempDir()

	// A leftover lock file nobody holds
	if err := os.WriteFile(filepath.Join(dir, "wayland-3.lock"), nil, 0600); err != nil {
		t.Fatalf("write lock file: %v", err)
	}

	state, err := ProbeName(dir, "wayland-3")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if state != ProbeStale {
		t.Errorf("leftover lock: got %v, want %v", state, ProbeStale)
	}
}

func TestProbeNameLiveByLock(t *testing.T) {
	dir := t.TempDir()

	sock, err := display.Listen(dir, "wayland-4")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer sock.Close()

	// Socket file removed externally while the lock is still held
	os.Remove(sock.BindPath())

	state, err := ProbeName(dir, "wayland-4")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if state != ProbeLive {
		t.Errorf("held lock: got %v, want %v", state, ProbeLive)
	}
}
