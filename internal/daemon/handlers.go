package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// controlHandler answers one control method
type controlHandler func(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error)

// controlHandlers maps method names to handlers
var controlHandlers = map[string]controlHandler{
	"ping":      handlePing,
	"status":    handleStatus,
	"clients":   handleClients,
	"metrics":   handleMetrics,
	"logs":      handleLogs,
	"subscribe": handleSubscribe,
	"stop":      handleStop,
}

func handlePing(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	return map[string]any{
		"pong":    true,
		"version": d.version,
	}, nil
}

func handleStatus(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	return d.Status(), nil
}

func handleClients(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	return d.registry.List(), nil
}

func handleMetrics(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	return d.MetricsSnapshot(), nil
}

// LogsParams selects which buffered log entries a logs call returns
type LogsParams struct {
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

func handleLogs(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	var p LogsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
		}
	}

	q := LogQuery{
		MinLevel: strings.ToUpper(p.Level),
		Limit:    p.Limit,
	}
	if q.Limit <= 0 {
		q.Limit = 500
	}
	if p.Since != "" {
		t, err := time.Parse(time.RFC3339, p.Since)
		if err != nil {
			return nil, &Error{Code: ErrCodeInvalidParams, Message: fmt.Sprintf("invalid since: %v", err)}
		}
		q.Since = t
	}

	entries := d.logRing.Tail(q)
	return LogsResult{
		Entries: entries,
		Count:   len(entries),
		Total:   d.logRing.Count(),
	}, nil
}

func handleSubscribe(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	c.subscribed.Store(true)
	return map[string]bool{"subscribed": true}, nil
}

func handleStop(ctx context.Context, d *Daemon, c *controlConn, params json.RawMessage) (any, error) {
	// The shutdown itself is triggered by the connection loop after
	// this reply has been flushed.
	return map[string]bool{"stopping": true}, nil
}
