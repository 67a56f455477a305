// Package client talks to a running waysock daemon over its control
// socket and implements the client side of the display convention:
// dialing a display by name and probing names without disturbing them.
package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"waysock.dev/go/waysock/internal/config"
	"waysock.dev/go/waysock/internal/display"
)

// ErrDaemonNotRunning is returned when no daemon answers on the
// control socket
var ErrDaemonNotRunning = errors.New("daemon is not running")

const (
	dialTimeout    = 5 * time.Second
	defaultTimeout = 30 * time.Second
)

// Client is a control socket client
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	mu      sync.Mutex
	reqID   uint64
	timeout time.Duration
}

// Request is a control request
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the daemon's reply to a Request
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is a control protocol error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Event is a server-initiated notification on a subscribed connection
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Status mirrors the daemon's status report
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

// ClientInfo describes one connected display client
type ClientInfo struct {
	ID          string     `json:"id"`
	Socket      string     `json:"socket"`
	ConnectedAt time.Time  `json:"connected_at"`
	Creds       *PeerCreds `json:"creds,omitempty"`
	Bytes       int64      `json:"bytes"`
}

// PeerCreds are the socket peer's credentials
type PeerCreds struct {
	PID int32  `json:"pid"`
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}

// LogEntry is one captured daemon log record
type LogEntry struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogsQuery selects which log entries a Logs call returns
type LogsQuery struct {
	Level string `json:"level,omitempty"`
	Since string `json:"since,omitempty"` // RFC 3339
	Limit int    `json:"limit,omitempty"`
}

// LogsResult carries the selected entries plus buffer totals
type LogsResult struct {
	Entries []LogEntry `json:"entries"`
	Count   int        `json:"count"`
	Total   int        `json:"total"`
}

// Connect dials the control socket in the conventional runtime
// directory
func Connect() (*Client, error) {
	dir, err := display.RuntimeDir()
	if err != nil {
		return nil, err
	}
	return ConnectTo(filepath.Join(dir, config.ControlSocketName))
}

// ConnectTo dials a control socket at an explicit path. A refused or
// missing socket maps to ErrDaemonNotRunning.
func ConnectTo(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}

	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		writer:  bufio.NewWriter(conn),
		timeout: defaultTimeout,
	}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// SetTimeout sets the per-call deadline
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Call sends one request and returns the raw result. Calls are
// serialized; use Subscribe and ReadEvent for streaming.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := fmt.Sprintf("%d", atomic.AddUint64(&c.reqID, 1))

	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}

	req := Request{
		ID:     id,
		Method: method,
		Params: paramsJSON,
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := json.NewEncoder(c.writer).Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(c.reader).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.Error != nil {
		return nil, resp.Error
	}

	return resp.Result, nil
}

// CallResult sends one request and unmarshals the result into result
func (c *Client) CallResult(method string, params any, result any) error {
	raw, err := c.Call(method, params)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return nil
}

// Ping checks that the daemon answers
func (c *Client) Ping() error {
	_, err := c.Call("ping", nil)
	return err
}

// Status fetches the daemon status
func (c *Client) Status() (*Status, error) {
	var status Status
	if err := c.CallResult("status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Clients lists the connected display clients
func (c *Client) Clients() ([]ClientInfo, error) {
	var clients []ClientInfo
	if err := c.CallResult("clients", nil, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// Metrics fetches the daemon's metrics snapshot as raw JSON
func (c *Client) Metrics() (json.RawMessage, error) {
	return c.Call("metrics", nil)
}

// Logs fetches buffered log entries matching the query
func (c *Client) Logs(q LogsQuery) (*LogsResult, error) {
	var result LogsResult
	if err := c.CallResult("logs", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe switches the connection to an event stream; read it with
// ReadEvent
func (c *Client) Subscribe() error {
	_, err := c.Call("subscribe", nil)
	return err
}

// ReadEvent blocks until the next event arrives
func (c *Client) ReadEvent() (*Event, error) {
	var event Event
	if err := json.NewDecoder(c.reader).Decode(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Stop asks the daemon to shut down. The daemon replies before it
// begins stopping.
func (c *Client) Stop() error {
	_, err := c.Call("stop", nil)
	return err
}

// IsRunning reports whether a daemon answers on the conventional
// control socket
func IsRunning() bool {
	c, err := Connect()
	if err != nil {
		return false
	}
	defer c.Close()

	return c.Ping() == nil
}

// RequireDaemon returns ErrDaemonNotRunning unless a daemon answers
func RequireDaemon() error {
	if !IsRunning() {
		return ErrDaemonNotRunning
	}
	return nil
}
