package daemon

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal event names
const (
	EventDaemonStarted      = "daemon.started"
	EventDaemonStopped      = "daemon.stopped"
	EventSocketBound        = "socket.bound"
	EventClientConnected    = "client.connected"
	EventClientDisconnected = "client.disconnected"
	EventClientRejected     = "client.rejected"
)

// JournalEntry is one line of the on-disk event journal
type JournalEntry struct {
	Time   time.Time `json:"ts"`
	Event  string    `json:"event"`
	Socket string    `json:"socket,omitempty"`
	Client string    `json:"client,omitempty"`
	UID    int       `json:"uid,omitempty"`
	PID    int       `json:"pid,omitempty"`
	Bytes  int64     `json:"bytes,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Journal appends lifecycle events to a JSONL file, one JSON object
// per line. The file is the record; nothing is buffered in memory. A
// nil Journal records nothing, which is how a disabled journal is
// represented.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenJournal opens or creates the journal file for appending. Open
// failures degrade to a journal that records nothing rather than
// failing daemon startup.
func OpenJournal(path string) *Journal {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		slog.Error("failed to create journal directory", "error", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		slog.Error("failed to open journal", "error", err, "path", path)
	}

	return &Journal{file: file, path: path}
}

// Path returns the journal file location
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Record appends one entry, stamping the current time when unset.
// Write errors are swallowed; the journal is an aid, not a ledger the
// daemon depends on.
func (j *Journal) Record(entry JournalEntry) {
	if j == nil {
		return
	}

	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return
	}
	j.file.Write(data)
	j.file.Write([]byte{'\n'})
}

// Close closes the journal file; later Records become no-ops
func (j *Journal) Close() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}
}
