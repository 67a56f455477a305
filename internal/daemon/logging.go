package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LogRingSize is the default number of log entries kept in memory for
// the logs control method and the web API
const LogRingSize = 4096

// LogEntry is one captured log record
type LogEntry struct {
	Time    time.Time      `json:"ts"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// LogRing is a fixed-size ring of recent log entries, safe for
// concurrent use
type LogRing struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	count   int
	notify  func(LogEntry)
}

// NewLogRing creates a ring holding up to size entries
func NewLogRing(size int) *LogRing {
	return &LogRing{
		entries: make([]LogEntry, size),
	}
}

// SetNotify registers fn to run after every captured entry. The
// callback runs on the logging goroutine, outside the ring lock, and
// must not block.
func (r *LogRing) SetNotify(fn func(LogEntry)) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Add appends an entry, evicting the oldest once the ring is full
func (r *LogRing) Add(entry LogEntry) {
	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
	fn := r.notify
	r.mu.Unlock()

	if fn != nil {
		fn(entry)
	}
}

// Count returns the number of entries currently held
func (r *LogRing) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// LogQuery filters a Tail call. MinLevel keeps entries at or above the
// given level, Since drops entries older than the given time, and
// Limit caps the result size. Zero values disable each filter.
type LogQuery struct {
	MinLevel string
	Since    time.Time
	Limit    int
}

// Tail returns the most recent matching entries in chronological
// order
func (r *LogRing) Tail(q LogQuery) []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]LogEntry, 0)

	// Walk newest to oldest so Limit keeps the most recent entries,
	// then reverse into chronological order.
	for i := 0; i < r.count; i++ {
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		entry := r.entries[idx]

		if !q.Since.IsZero() && entry.Time.Before(q.Since) {
			continue
		}
		if q.MinLevel != "" && levelRank(entry.Level) < levelRank(q.MinLevel) {
			continue
		}

		matched = append(matched, entry)

		if q.Limit > 0 && len(matched) >= q.Limit {
			break
		}
	}

	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	return matched
}

// levelRank orders slog level names; unknown names rank below DEBUG so
// a filter never hides them by accident
func levelRank(level string) int {
	switch level {
	case "DEBUG":
		return 0
	case "INFO":
		return 1
	case "WARN":
		return 2
	case "ERROR":
		return 3
	default:
		return -1
	}
}

// CaptureHandler is an slog.Handler that records every log line in a
// LogRing before delegating to the wrapped handler, so the daemon can
// serve its own recent logs over the control socket
type CaptureHandler struct {
	ring  *LogRing
	next  slog.Handler
	attrs []slog.Attr
	group string
}

// NewCaptureHandler wraps next with ring capture
func NewCaptureHandler(ring *LogRing, next slog.Handler) *CaptureHandler {
	return &CaptureHandler{
		ring: ring,
		next: next,
	}
}

func (h *CaptureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *CaptureHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))

	// Pre-set attrs were qualified when they were added
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Any()
		return true
	})

	if len(attrs) == 0 {
		attrs = nil
	}

	h.ring.Add(LogEntry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
		Attrs:   attrs,
	})

	return h.next.Handle(ctx, r)
}

func (h *CaptureHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		qualified[i] = slog.Attr{Key: h.qualify(a.Key), Value: a.Value}
	}
	return &CaptureHandler{
		ring:  h.ring,
		next:  h.next.WithAttrs(attrs),
		attrs: append(h.attrs[:len(h.attrs):len(h.attrs)], qualified...),
		group: h.group,
	}
}

func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &CaptureHandler{
		ring:  h.ring,
		next:  h.next.WithGroup(name),
		attrs: h.attrs,
		group: group,
	}
}
