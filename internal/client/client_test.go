package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"waysock.dev/go/waysock/internal/config"
	"waysock.dev/go/waysock/internal/daemon"
)

// startDaemon runs a daemon in-process and returns its runtime
// directory and control socket path
func startDaemon(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()

	cfg := config.Default()
	cfg.Socket.RuntimeDir = dir

	cfgDir := t.TempDir()
	paths := &config.Paths{
		ConfigDir:   cfgDir,
		ConfigFile:  filepath.Join(cfgDir, "config.toml"),
		PIDFile:     filepath.Join(cfgDir, "daemon.pid"),
		JournalFile: filepath.Join(cfgDir, "events.jsonl"),
	}

	d, err := daemon.New(&daemon.Options{Config: cfg, Paths: paths, Version: "test"})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	ctl := filepath.Join(dir, config.ControlSocketName)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(ctl); err == nil {
			return dir, ctl
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("control socket never appeared")
	return "", ""
}

func TestClientRoundTrips(t *testing.T) {
	dir, ctl := startDaemon(t)

	c, err := ConnectTo(ctl)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	st, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running {
		t.Error("Running: got false, want true")
	}
	if st.Display != "wayland-1" {
		t.Errorf("Display: got %q, want wayland-1", st.Display)
	}
	if st.RuntimeDir != dir {
		t.Errorf("RuntimeDir: got %q, want %q", st.RuntimeDir, dir)
	}

	clients, err := c.Clients()
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	if len(clients) != 0 {
		t.Errorf("clients: got %d, want 0", len(clients))
	}

	raw, err := c.Metrics()
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if len(raw) == 0 {
		t.Error("Metrics returned an empty result")
	}

	logs, err := c.Logs(LogsQuery{Limit: 10})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if logs.Count != len(logs.Entries) {
		t.Errorf("Count %d does not match %d entries", logs.Count, len(logs.Entries))
	}
}

func TestClientUnknownMethod(t *testing.T) {
	_, ctl := startDaemon(t)

	c, err := ConnectTo(ctl)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	defer c.Close()

	_, err = c.Call("bogus", nil)
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error type: got %T (%v), want *Error", err, err)
	}
	if cerr.Code != -32601 {
		t.Errorf("error code: got %d, want -32601", cerr.Code)
	}
}

func TestClientSubscribeEvents(t *testing.T) {
	dir, ctl := startDaemon(t)

	sub, err := ConnectTo(ctl)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	defer sub.Close()

	if err := sub.Subscribe(); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// A display connection produces a client-connected event
	conn, err := DialDisplay(dir, "wayland-1")
	if err != nil {
		t.Fatalf("DialDisplay: %v", err)
	}
	defer conn.Close()

	sub.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		event, err := sub.ReadEvent()
		if err != nil {
			t.Fatalf("ReadEvent: %v", err)
		}
		if event.Event == "client-connected" {
			return
		}
		// Interleaved log events are expected on the stream
	}
}

func TestClientStop(t *testing.T) {
	dir, ctl := startDaemon(t)

	c, err := ConnectTo(ctl)
	if err != nil {
		t.Fatalf("ConnectTo: %v", err)
	}
	defer c.Close()

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// The daemon removes its artifacts on the way down
	displayPath := filepath.Join(dir, "wayland-1")
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, ctlErr := os.Stat(ctl)
		_, dispErr := os.Stat(displayPath)
		if os.IsNotExist(ctlErr) && os.IsNotExist(dispErr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("daemon artifacts were not removed after Stop")
}

func TestConnectToNotRunning(t *testing.T) {
	_, err := ConnectTo(filepath.Join(t.TempDir(), "missing.sock"))
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("ConnectTo: got %v, want ErrDaemonNotRunning", err)
	}
}

func TestIsRunningNoDaemon(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	if IsRunning() {
		t.Error("IsRunning: got true with no daemon")
	}
	if err := RequireDaemon(); !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("RequireDaemon: got %v, want ErrDaemonNotRunning", err)
	}
}
