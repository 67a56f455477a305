package daemon

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// PeerCreds are the kernel-reported credentials of a connected peer,
// read with SO_PEERCRED where the platform supports it
type PeerCreds struct {
	PID int32  `json:"pid"`
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`
}

// Client is one accepted display connection tracked by the daemon
type Client struct {
	ID          string
	Socket      string // logical name the peer dialed, e.g. "wayland-1"
	ConnectedAt time.Time
	Creds       *PeerCreds

	conn  net.Conn
	bytes atomic.Int64
}

// newClient wraps an accepted connection with an ID and, when
// available, the peer's credentials
func newClient(conn net.Conn, socket string) *Client {
	c := &Client{
		ID:          uuid.New().String(),
		Socket:      socket,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	if creds, err := peerCreds(conn); err == nil {
		c.Creds = creds
	}
	return c
}

func (c *Client) addBytes(n int64) { c.bytes.Add(n) }

// Bytes returns the number of bytes drained from this peer so far
func (c *Client) Bytes() int64 { return c.bytes.Load() }

// Info returns a serializable snapshot of the client
func (c *Client) Info() ClientInfo {
	return ClientInfo{
		ID:          c.ID,
		Socket:      c.Socket,
		ConnectedAt: c.ConnectedAt,
		Creds:       c.Creds,
		Bytes:       c.Bytes(),
	}
}

// ClientInfo is the wire form of a tracked client
type ClientInfo struct {
	ID          string     `json:"id"`
	Socket      string     `json:"socket"`
	ConnectedAt time.Time  `json:"connected_at"`
	Creds       *PeerCreds `json:"creds,omitempty"`
	Bytes       int64      `json:"bytes"`
}

// Registry tracks the live display connections by ID
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add starts tracking a client
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Remove stops tracking a client; unknown IDs are ignored
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// Get returns the tracked client with the given ID
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Count returns the number of tracked clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// List returns snapshots of all tracked clients, oldest first
func (r *Registry) List() []ClientInfo {
	r.mu.RLock()
	infos := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		infos = append(infos, c.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].ConnectedAt.Equal(infos[j].ConnectedAt) {
			return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
		}
		return infos[i].ID < infos[j].ID
	})

	return infos
}

// CloseAll closes every tracked connection, unblocking their drain
// loops. Each loop removes its own registry entry as it exits.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		c.conn.Close()
	}
}
