package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"waysock.dev/go/waysock/internal/display"
)

// Request is a control request from a client
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

func (e *Error) Error() string { return e.Message }

// Event is a server-initiated notification sent to subscribed clients
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Control protocol error codes
const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Event names sent to subscribers
const (
	EventNameConnected    = "client-connected"
	EventNameDisconnected = "client-disconnected"
	EventNameLog          = "log"
	EventNameShutdown     = "shutdown"
)

// ControlServer answers JSON requests on the daemon's control socket.
// The socket follows the same lock and cleanup lifecycle as display
// sockets, so its lock file doubles as the single-instance guard.
type ControlServer struct {
	socket  *display.Socket
	daemon  *Daemon
	conns   map[*controlConn]bool
	connsMu sync.RWMutex
	done    chan struct{}
}

// controlConn is one connected control client
type controlConn struct {
	conn       net.Conn
	writer     *bufio.Writer
	writerMu   sync.Mutex
	subscribed atomic.Bool
}

// newControlServer wraps an already bound control socket
func newControlServer(d *Daemon, socket *display.Socket) *ControlServer {
	return &ControlServer{
		socket: socket,
		daemon: d,
		conns:  make(map[*controlConn]bool),
		done:   make(chan struct{}),
	}
}

// start begins accepting control connections
func (s *ControlServer) start(ctx context.Context) {
	slog.Info("control socket listening", "path", s.socket.BindPath())
	go s.acceptLoop(ctx)
}

// stop closes the control socket and all connected clients. The
// socket's Close removes both of its filesystem artifacts.
func (s *ControlServer) stop() {
	close(s.done)
	s.socket.Close()

	s.connsMu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.connsMu.Unlock()
}

func (s *ControlServer) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.socket.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("control accept error", "error", err)
			continue
		}

		c := &controlConn{
			conn:   conn,
			writer: bufio.NewWriter(conn),
		}

		s.connsMu.Lock()
		s.conns[c] = true
		s.connsMu.Unlock()

		go s.handleConn(ctx, c)
	}
}

func (s *ControlServer) handleConn(ctx context.Context, c *controlConn) {
	defer func() {
		c.conn.Close()
		s.connsMu.Lock()
		delete(s.conns, c)
		s.connsMu.Unlock()
	}()

	decoder := json.NewDecoder(bufio.NewReader(c.conn))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		var req Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			// The stream cannot be resynced after a syntax error;
			// answer once and drop the connection.
			c.sendResponse(&Response{
				Error: &Error{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf("malformed request: %v", err)},
			})
			return
		}

		resp := s.handleRequest(ctx, c, &req)
		if err := c.sendResponse(resp); err != nil {
			slog.Debug("control send error", "error", err)
			return
		}

		// Stop is signaled only after the reply is on the wire
		if req.Method == "stop" && resp.Error == nil {
			s.daemon.requestStop()
		}
	}
}

func (s *ControlServer) handleRequest(ctx context.Context, c *controlConn, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("control handler panicked", "method", req.Method, "panic", r)
			resp = &Response{
				ID:    req.ID,
				Error: &Error{Code: ErrCodeInternalError, Message: "internal error"},
			}
		}
	}()

	handler, ok := controlHandlers[req.Method]
	if !ok {
		return &Response{
			ID:    req.ID,
			Error: &Error{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)},
		}
	}

	result, err := handler(ctx, s.daemon, c, req.Params)
	if err != nil {
		var cerr *Error
		if errors.As(err, &cerr) {
			return &Response{ID: req.ID, Error: cerr}
		}
		return &Response{
			ID:    req.ID,
			Error: &Error{Code: ErrCodeInternalError, Message: err.Error()},
		}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return &Response{
			ID:    req.ID,
			Error: &Error{Code: ErrCodeInternalError, Message: "failed to encode result"},
		}
	}

	return &Response{ID: req.ID, Result: resultJSON}
}

// sendResponse writes a response to the client
func (c *controlConn) sendResponse(resp *Response) error {
	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	if err := json.NewEncoder(c.writer).Encode(resp); err != nil {
		return err
	}
	return c.writer.Flush()
}

// sendEvent writes an event to the client if it subscribed
func (c *controlConn) sendEvent(event *Event) error {
	if !c.subscribed.Load() {
		return nil
	}

	c.writerMu.Lock()
	defer c.writerMu.Unlock()

	if err := json.NewEncoder(c.writer).Encode(event); err != nil {
		return err
	}
	return c.writer.Flush()
}

// broadcast fans an event out to all subscribed clients. Payload
// marshalling failures drop the event.
func (s *ControlServer) broadcast(name string, payload any) {
	event := &Event{Event: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Warn("failed to marshal event payload", "event", name, "error", err)
			return
		}
		event.Payload = data
	}

	s.connsMu.RLock()
	defer s.connsMu.RUnlock()

	for c := range s.conns {
		if c.subscribed.Load() {
			go c.sendEvent(event)
		}
	}
}

// subscriberCount returns the number of subscribed control clients
func (s *ControlServer) subscriberCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()

	n := 0
	for c := range s.conns {
		if c.subscribed.Load() {
			n++
		}
	}
	return n
}
