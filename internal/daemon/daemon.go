package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"waysock.dev/go/waysock/internal/config"
	"waysock.dev/go/waysock/internal/display"
)

// ErrAlreadyRunning means another daemon instance holds the control
// socket lock
var ErrAlreadyRunning = errors.New("daemon already running")

const (
	// acceptRetryDelay spaces out retries after transient accept
	// failures (fd exhaustion and the like)
	acceptRetryDelay = 100 * time.Millisecond

	// shutdownGrace bounds how long Stop waits for drain goroutines
	shutdownGrace = 3 * time.Second

	// drainBufSize is the read buffer for discarding peer bytes
	drainBufSize = 32 * 1024
)

// Daemon owns a display socket: it selects and binds the endpoint,
// accepts and drains peer connections, and serves inspection over a
// control socket bound next to it.
type Daemon struct {
	cfg     *config.Config
	paths   *config.Paths
	version string

	display  *display.Socket
	control  *ControlServer
	web      *WebServer
	registry *Registry
	limiter  *AcceptLimiter
	metrics  *Metrics
	logRing  *LogRing
	journal  *Journal

	runtimeDir string
	startTime  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopReq  chan struct{}
	reqOnce  sync.Once
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Options configures the daemon
type Options struct {
	Config  *config.Config
	Paths   *config.Paths
	Version string
}

// Status is the daemon's current state as reported over the control
// socket and the web API
type Status struct {
	Running     bool      `json:"running"`
	PID         int       `json:"pid"`
	Version     string    `json:"version"`
	StartTime   time.Time `json:"start_time"`
	Uptime      string    `json:"uptime"`
	RuntimeDir  string    `json:"runtime_dir"`
	Display     string    `json:"display"`
	DisplayPath string    `json:"display_path"`
	ControlPath string    `json:"control_path"`
	Clients     int       `json:"clients"`
	Subscribers int       `json:"subscribers"`
}

// New creates a daemon instance. The process-wide slog default is
// replaced with a handler that also captures entries for the logs
// control method.
func New(opts *Options) (*Daemon, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	paths := opts.Paths
	if paths == nil {
		var err error
		paths, err = config.GetPaths()
		if err != nil {
			return nil, fmt.Errorf("get paths: %w", err)
		}
	}

	logRing := NewLogRing(LogRingSize)
	slog.SetDefault(slog.New(NewCaptureHandler(logRing, newBaseHandler(cfg.Logging))))

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		cfg:       cfg,
		paths:     paths,
		version:   opts.Version,
		registry:  NewRegistry(),
		limiter:   NewAcceptLimiter(cfg.Limits),
		metrics:   NewMetrics(),
		logRing:   logRing,
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		stopReq:   make(chan struct{}),
	}

	if cfg.Web.Enabled {
		d.web = NewWebServer(d, cfg.Web.Listen)
	}

	// Captured log entries are also streamed to subscribers
	logRing.SetNotify(func(e LogEntry) {
		d.notifyEvent(EventNameLog, e)
	})

	return d, nil
}

// newBaseHandler builds the slog output handler from config
func newBaseHandler(cfg config.LoggingConfig) slog.Handler {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

// Run binds the sockets and serves until ctx is cancelled or a stop
// request arrives over the control socket
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		slog.Info("shutdown requested", "cause", ctx.Err())
	case <-d.stopReq:
		slog.Info("shutdown requested over control socket")
	case <-d.ctx.Done():
	}

	return d.Stop()
}

// start binds the control and display sockets and launches the accept
// loops
func (d *Daemon) start() error {
	dir := d.cfg.Socket.RuntimeDir
	if dir == "" {
		var err error
		dir, err = display.RuntimeDir()
		if err != nil {
			return err
		}
	}
	d.runtimeDir = dir

	// The control socket comes first: its lock is the single-instance
	// guard, so a second daemon fails here before touching any
	// display name.
	ctl, err := display.Listen(dir, config.ControlSocketName)
	if err != nil {
		if errors.Is(err, display.ErrLocked) {
			return fmt.Errorf("%w: control socket %s is held", ErrAlreadyRunning, config.ControlSocketName)
		}
		return fmt.Errorf("bind control socket: %w", err)
	}
	d.control = newControlServer(d, ctl)

	sock, err := d.bindDisplay(dir)
	if err != nil {
		ctl.Close()
		return err
	}
	d.display = sock

	if err := d.paths.EnsureDirectories(); err != nil {
		slog.Warn("failed to create config directory", "error", err)
	}
	if d.paths.PIDFile != "" {
		if err := os.WriteFile(d.paths.PIDFile, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
			slog.Warn("failed to write pid file", "error", err)
		}
	}

	if d.cfg.Journal.Enabled {
		d.journal = OpenJournal(d.paths.JournalFile)
	}
	d.journal.Record(JournalEntry{Event: EventDaemonStarted, PID: os.Getpid()})
	d.journal.Record(JournalEntry{Event: EventSocketBound, Socket: sock.Name()})

	d.control.start(d.ctx)
	if d.web != nil {
		d.web.Start(d.ctx)
	}

	d.wg.Add(1)
	go d.acceptDisplay()

	slog.Info("daemon started",
		"display", sock.Name(),
		"dir", dir,
		"pid", os.Getpid(),
	)

	return nil
}

// bindDisplay binds the configured fixed name, or walks the
// conventional candidates when none is configured
func (d *Daemon) bindDisplay(dir string) (*display.Socket, error) {
	if name := d.cfg.Socket.Name; name != "" {
		sock, err := display.Listen(dir, name)
		if err != nil {
			return nil, fmt.Errorf("bind display socket %s: %w", name, err)
		}
		return sock, nil
	}

	sock, err := display.ListenAuto(dir)
	if err != nil {
		return nil, fmt.Errorf("bind display socket: %w", err)
	}
	return sock, nil
}

// acceptDisplay accepts display connections until the socket closes.
// Transient accept failures are retried after a short delay.
func (d *Daemon) acceptDisplay() {
	defer d.wg.Done()

	for {
		conn, err := d.display.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			d.metrics.RecordAcceptError()
			slog.Error("display accept failed", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		if err := d.limiter.Admit(); err != nil {
			d.metrics.RecordReject()
			d.journal.Record(JournalEntry{
				Event:  EventClientRejected,
				Socket: d.display.Name(),
				Error:  err.Error(),
			})
			slog.Warn("display connection rejected", "error", err)
			conn.Close()
			continue
		}

		client := newClient(conn, d.display.Name())
		d.registry.Add(client)
		d.metrics.RecordAccept()

		entry := JournalEntry{
			Event:  EventClientConnected,
			Socket: client.Socket,
			Client: client.ID,
		}
		if client.Creds != nil {
			entry.UID = int(client.Creds.UID)
			entry.PID = int(client.Creds.PID)
		}
		d.journal.Record(entry)

		slog.Info("display client connected", "client", client.ID)
		d.notifyEvent(EventNameConnected, client.Info())

		d.wg.Add(1)
		go d.serveClient(client)
	}
}

// serveClient consumes the peer's byte stream until it closes. The
// display protocol itself is never interpreted; bytes are counted and
// discarded. With drain disabled the connection is dropped right
// after registration.
func (d *Daemon) serveClient(c *Client) {
	defer d.wg.Done()

	if d.cfg.Socket.Drain {
		buf := make([]byte, drainBufSize)
		for {
			n, err := c.conn.Read(buf)
			if n > 0 {
				c.addBytes(int64(n))
				d.metrics.AddBytesDrained(int64(n))
			}
			if err != nil {
				break
			}
		}
	}

	c.conn.Close()
	d.registry.Remove(c.ID)
	d.limiter.Release()
	d.metrics.RecordSession(time.Since(c.ConnectedAt))

	entry := JournalEntry{
		Event:  EventClientDisconnected,
		Socket: c.Socket,
		Client: c.ID,
		Bytes:  c.Bytes(),
	}
	if c.Creds != nil {
		entry.UID = int(c.Creds.UID)
		entry.PID = int(c.Creds.PID)
	}
	d.journal.Record(entry)

	slog.Info("display client disconnected", "client", c.ID, "bytes", c.Bytes())
	d.notifyEvent(EventNameDisconnected, c.Info())
}

// requestStop asks the run loop to shut down; safe to call more than
// once
func (d *Daemon) requestStop() {
	d.reqOnce.Do(func() {
		close(d.stopReq)
	})
}

// Stop shuts everything down in dependency order: sockets close first
// so the accept loops unblock, then live connections, then the
// journal once the drain goroutines have finished. Only the first
// call does any work.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		slog.Info("stopping daemon")
		d.notifyEvent(EventNameShutdown, nil)
		d.cancel()

		if d.web != nil {
			d.web.Stop()
		}
		if d.control != nil {
			d.control.stop()
		}
		if d.display != nil {
			d.display.Close()
		}
		d.registry.CloseAll()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			slog.Warn("shutdown grace period elapsed with connections still draining")
		}

		d.journal.Record(JournalEntry{Event: EventDaemonStopped})
		d.journal.Close()

		if d.paths.PIDFile != "" {
			os.Remove(d.paths.PIDFile)
		}

		slog.Info("daemon stopped")
	})
	return nil
}

// notifyEvent fans an event out to control subscribers and the
// WebSocket feed
func (d *Daemon) notifyEvent(name string, payload any) {
	if d.control != nil {
		d.control.broadcast(name, payload)
	}
	if d.web != nil {
		event := &Event{Event: name}
		if payload != nil {
			if data, err := json.Marshal(payload); err == nil {
				event.Payload = data
			}
		}
		d.web.Broadcast(event)
	}
}

// Status reports the daemon's current state
func (d *Daemon) Status() *Status {
	s := &Status{
		Running:    true,
		PID:        os.Getpid(),
		Version:    d.version,
		StartTime:  d.startTime,
		Uptime:     time.Since(d.startTime).Round(time.Second).String(),
		RuntimeDir: d.runtimeDir,
		Clients:    d.registry.Count(),
	}

	if d.display != nil {
		s.Display = d.display.Name()
		s.DisplayPath = d.display.BindPath()
	}
	if d.control != nil {
		s.ControlPath = d.control.socket.BindPath()
		s.Subscribers = d.control.subscriberCount()
	}

	return s
}

// MetricsSnapshot returns the metrics with live gauges filled in
func (d *Daemon) MetricsSnapshot() *MetricsSnapshot {
	return d.metrics.Snapshot(func() GaugeMetrics {
		g := GaugeMetrics{
			ConnectedClients: d.registry.Count(),
		}
		if d.control != nil {
			g.Subscribers = d.control.subscriberCount()
		}
		if d.web != nil {
			g.WebClients = d.web.ClientCount()
		}
		return g
	})
}

// Registry returns the connection registry
func (d *Daemon) Registry() *Registry {
	return d.registry
}

// Metrics returns the metrics collector
func (d *Daemon) Metrics() *Metrics {
	return d.metrics
}

// LogRing returns the captured log buffer
func (d *Daemon) LogRing() *LogRing {
	return d.logRing
}

// DisplayName returns the bound display name, empty before Run
func (d *Daemon) DisplayName() string {
	if d.display == nil {
		return ""
	}
	return d.display.Name()
}
