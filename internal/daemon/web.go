package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WebServer is the optional loopback debug surface: a read-only JSON
// API over the daemon's state plus a WebSocket event feed. Config
// validation rejects non-loopback listen addresses before this is
// ever constructed.
type WebServer struct {
	daemon *Daemon
	server *http.Server
	hub    *WSHub
}

// NewWebServer builds the debug server on the given loopback address
func NewWebServer(daemon *Daemon, listen string) *WebServer {
	ws := &WebServer{
		daemon: daemon,
		hub:    NewWSHub(daemon.metrics),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/clients", ws.handleClients)
	mux.HandleFunc("/api/metrics", ws.handleMetrics)
	mux.HandleFunc("/api/logs", ws.handleLogs)
	mux.HandleFunc("/ws", ws.hub.HandleWebSocket)
	mux.HandleFunc("/", ws.handleIndex)

	ws.server = &http.Server{
		Addr:         listen,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return ws
}

// Start serves in the background until Stop
func (ws *WebServer) Start(ctx context.Context) {
	slog.Info("web server starting", "addr", ws.server.Addr)

	go ws.hub.Run(ctx)
	go func() {
		if err := ws.server.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("web server error", "error", err)
		}
	}()
}

// Stop shuts the HTTP server down, allowing in-flight requests a
// short grace period
func (ws *WebServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws.server.Shutdown(ctx)
}

// Broadcast forwards an event to the WebSocket feed
func (ws *WebServer) Broadcast(event *Event) {
	ws.hub.Broadcast(event)
}

// ClientCount returns the number of WebSocket subscribers
func (ws *WebServer) ClientCount() int {
	return ws.hub.ClientCount()
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		ws.errorResponse(w, http.StatusNotFound, "not found")
		return
	}

	ws.jsonResponse(w, map[string]any{
		"service":   "waysock",
		"version":   ws.daemon.version,
		"endpoints": []string{"/api/status", "/api/clients", "/api/metrics", "/api/logs", "/ws"},
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ws.jsonResponse(w, ws.daemon.Status())
}

func (ws *WebServer) handleClients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ws.jsonResponse(w, ws.daemon.registry.List())
}

func (ws *WebServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ws.jsonResponse(w, ws.daemon.MetricsSnapshot())
}

func (ws *WebServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ws.errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := LogQuery{Limit: 500}
	query := r.URL.Query()

	if level := query.Get("level"); level != "" {
		q.MinLevel = strings.ToUpper(level)
	}

	if since := query.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			ws.errorResponse(w, http.StatusBadRequest, "invalid since")
			return
		}
		q.Since = t
	}

	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 5000 {
			ws.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	entries := ws.daemon.logRing.Tail(q)

	ws.jsonResponse(w, map[string]any{
		"entries": entries,
		"count":   len(entries),
		"total":   ws.daemon.logRing.Count(),
	})
}

func (ws *WebServer) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (ws *WebServer) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
