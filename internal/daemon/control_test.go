package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"waysock.dev/go/waysock/internal/config"
	"waysock.dev/go/waysock/internal/display"
)

// controlEnvelope decodes either a Response or an Event off the wire
type controlEnvelope struct {
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func testPaths(t *testing.T) *config.Paths {
	t.Helper()
	dir := t.TempDir()
	return &config.Paths{
		ConfigDir:   dir,
		ConfigFile:  filepath.Join(dir, "config.toml"),
		PIDFile:     filepath.Join(dir, "daemon.pid"),
		JournalFile: filepath.Join(dir, "events.jsonl"),
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	cfg := config.Default()
	cfg.Socket.RuntimeDir = t.TempDir()

	d, err := New(&Options{Config: cfg, Paths: testPaths(t), Version: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

// startControlServer brings up a control server on its own socket
// without running the rest of the daemon
func startControlServer(t *testing.T) (*Daemon, *ControlServer, string) {
	t.Helper()

	d := newTestDaemon(t)

	sock, err := display.Listen(t.TempDir(), "ctl-test")
	if err != nil {
		t.Fatalf("bind control socket: %v", err)
	}

	srv := newControlServer(d, sock)
	d.control = srv
	srv.start(context.Background())
	t.Cleanup(srv.stop)

	return d, srv, sock.BindPath()
}

func dialControl(t *testing.T, path string) (net.Conn, *json.Decoder) {
	t.Helper()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial control socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	return conn, json.NewDecoder(conn)
}

func roundTrip(t *testing.T, conn net.Conn, dec *json.Decoder, req Request) controlEnvelope {
	t.Helper()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatalf("send request: %v", err)
	}
	var env controlEnvelope
	if err := dec.Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

func TestControlPing(t *testing.T) {
	_, _, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "ping"})
	if env.ID != "1" {
		t.Errorf("response id: got %q, want 1", env.ID)
	}
	if env.Error != nil {
		t.Fatalf("ping returned error: %v", env.Error)
	}

	var result map[string]any
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["pong"] != true {
		t.Errorf("pong: got %v, want true", result["pong"])
	}
	if result["version"] != "test" {
		t.Errorf("version: got %v, want test", result["version"])
	}
}

func TestControlMethodNotFound(t *testing.T) {
	_, _, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "bogus"})
	if env.Error == nil {
		t.Fatal("unknown method returned no error")
	}
	if env.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("error code: got %d, want %d", env.Error.Code, ErrCodeMethodNotFound)
	}

	// The connection survives a semantic error
	env = roundTrip(t, conn, dec, Request{ID: "2", Method: "ping"})
	if env.Error != nil {
		t.Errorf("ping after unknown method failed: %v", env.Error)
	}
}

func TestControlMalformedRequest(t *testing.T) {
	_, _, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	if _, err := conn.Write([]byte("{ not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var env controlEnvelope
	if err := dec.Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error == nil || env.Error.Code != ErrCodeInvalidRequest {
		t.Fatalf("error: got %v, want code %d", env.Error, ErrCodeInvalidRequest)
	}

	// A syntax error ends the stream
	if err := dec.Decode(&env); err == nil {
		t.Error("connection still open after malformed request")
	}
}

func TestControlStatus(t *testing.T) {
	_, _, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "status"})
	if env.Error != nil {
		t.Fatalf("status returned error: %v", env.Error)
	}

	var st Status
	if err := json.Unmarshal(env.Result, &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !st.Running {
		t.Error("Running: got false, want true")
	}
	if st.PID != os.Getpid() {
		t.Errorf("PID: got %d, want %d", st.PID, os.Getpid())
	}
	if st.Version != "test" {
		t.Errorf("Version: got %q, want test", st.Version)
	}
}

func TestControlClients(t *testing.T) {
	d, _, path := startControlServer(t)
	d.registry.Add(&Client{ID: "c1", Socket: "wayland-1", ConnectedAt: time.Now()})

	conn, dec := dialControl(t, path)
	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "clients"})
	if env.Error != nil {
		t.Fatalf("clients returned error: %v", env.Error)
	}

	var infos []ClientInfo
	if err := json.Unmarshal(env.Result, &infos); err != nil {
		t.Fatalf("unmarshal clients: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("clients: got %d, want 1", len(infos))
	}
	if infos[0].ID != "c1" {
		t.Errorf("client id: got %q, want c1", infos[0].ID)
	}
}

func TestControlMetrics(t *testing.T) {
	d, _, path := startControlServer(t)
	d.metrics.RecordAccept()

	conn, dec := dialControl(t, path)
	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "metrics"})
	if env.Error != nil {
		t.Fatalf("metrics returned error: %v", env.Error)
	}

	var snap MetricsSnapshot
	if err := json.Unmarshal(env.Result, &snap); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if snap.Counters.ClientsAccepted != 1 {
		t.Errorf("ClientsAccepted: got %d, want 1", snap.Counters.ClientsAccepted)
	}
}

func TestControlLogs(t *testing.T) {
	d, _, path := startControlServer(t)

	now := time.Now()
	d.logRing.Add(LogEntry{Time: now, Level: "INFO", Message: "info-probe"})
	d.logRing.Add(LogEntry{Time: now, Level: "WARN", Message: "warn-probe"})
	d.logRing.Add(LogEntry{Time: now, Level: "ERROR", Message: "error-probe"})

	conn, dec := dialControl(t, path)
	env := roundTrip(t, conn, dec, Request{
		ID:     "1",
		Method: "logs",
		Params: json.RawMessage(`{"level":"warn"}`),
	})
	if env.Error != nil {
		t.Fatalf("logs returned error: %v", env.Error)
	}

	var result LogsResult
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	if result.Count != len(result.Entries) {
		t.Errorf("Count %d does not match %d entries", result.Count, len(result.Entries))
	}

	seen := make(map[string]bool)
	for _, e := range result.Entries {
		seen[e.Message] = true
		if e.Level == "INFO" || e.Level == "DEBUG" {
			t.Errorf("level filter leaked %s entry %q", e.Level, e.Message)
		}
	}
	if !seen["warn-probe"] || !seen["error-probe"] {
		t.Errorf("missing probe entries, got %v", seen)
	}
	if result.Total < 3 {
		t.Errorf("Total: got %d, want >= 3", result.Total)
	}
}

func TestControlLogsInvalidParams(t *testing.T) {
	d := newTestDaemon(t)

	_, err := handleLogs(context.Background(), d, nil, json.RawMessage(`{"since":"not-a-time"}`))
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error type: got %T (%v), want *Error", err, err)
	}
	if cerr.Code != ErrCodeInvalidParams {
		t.Errorf("error code: got %d, want %d", cerr.Code, ErrCodeInvalidParams)
	}

	_, err = handleLogs(context.Background(), d, nil, json.RawMessage(`{"limit":"ten"}`))
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeInvalidParams {
		t.Errorf("malformed params: got %v, want code %d", err, ErrCodeInvalidParams)
	}
}

func TestControlSubscribe(t *testing.T) {
	_, srv, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "subscribe"})
	if env.Error != nil {
		t.Fatalf("subscribe returned error: %v", env.Error)
	}
	if srv.subscriberCount() != 1 {
		t.Errorf("subscriberCount: got %d, want 1", srv.subscriberCount())
	}

	srv.broadcast(EventNameConnected, map[string]string{"id": "c9"})

	var event controlEnvelope
	if err := dec.Decode(&event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Event != EventNameConnected {
		t.Errorf("event name: got %q, want %q", event.Event, EventNameConnected)
	}

	var payload map[string]string
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["id"] != "c9" {
		t.Errorf("payload id: got %q, want c9", payload["id"])
	}
}

func TestControlUnsubscribedGetsNoEvents(t *testing.T) {
	_, srv, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	// Connected but never subscribed
	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "ping"})
	if env.Error != nil {
		t.Fatalf("ping returned error: %v", env.Error)
	}

	srv.broadcast(EventNameConnected, nil)

	// The next frame must be the ping reply, not an event
	env = roundTrip(t, conn, dec, Request{ID: "2", Method: "ping"})
	if env.Event != "" {
		t.Errorf("received event %q without subscribing", env.Event)
	}
	if env.ID != "2" {
		t.Errorf("response id: got %q, want 2", env.ID)
	}
}

func TestControlHandlerPanic(t *testing.T) {
	controlHandlers["boom"] = func(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
		panic("boom")
	}
	t.Cleanup(func() { delete(controlHandlers, "boom") })

	_, _, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "boom"})
	if env.Error == nil || env.Error.Code != ErrCodeInternalError {
		t.Fatalf("error: got %v, want code %d", env.Error, ErrCodeInternalError)
	}

	// The daemon keeps serving after a handler panic
	env = roundTrip(t, conn, dec, Request{ID: "2", Method: "ping"})
	if env.Error != nil {
		t.Errorf("ping after panic failed: %v", env.Error)
	}
}

func TestControlStop(t *testing.T) {
	d, _, path := startControlServer(t)
	conn, dec := dialControl(t, path)

	env := roundTrip(t, conn, dec, Request{ID: "1", Method: "stop"})
	if env.Error != nil {
		t.Fatalf("stop returned error: %v", env.Error)
	}

	var result map[string]bool
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result["stopping"] {
		t.Error("stopping: got false, want true")
	}

	select {
	case <-d.stopReq:
	case <-time.After(2 * time.Second):
		t.Fatal("stop request was not signaled")
	}
}
