package daemon

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// maxSessionSamples bounds the ring of recorded session durations
const maxSessionSamples = 256

// Metrics collects operational counters for the daemon. Counters are
// atomic so the accept and drain paths never contend on a lock.
type Metrics struct {
	startTime time.Time

	ClientsAccepted atomic.Int64
	ClientsRejected atomic.Int64
	AcceptErrors    atomic.Int64
	BytesDrained    atomic.Int64
	EventsDropped   atomic.Int64

	// Session durations (ring buffer of the last N closed connections)
	sessionMu    sync.RWMutex
	sessions     []time.Duration
	sessionIndex int
}

// MetricsSnapshot is a point-in-time view of all metrics
type MetricsSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	UptimeSec float64   `json:"uptime_sec"`

	System   SystemMetrics  `json:"system"`
	Counters CounterMetrics `json:"counters"`
	Gauges   GaugeMetrics   `json:"gauges"`
	Sessions SessionMetrics `json:"sessions"`
}

// SystemMetrics contains runtime information
type SystemMetrics struct {
	GoVersion    string  `json:"go_version"`
	NumCPU       int     `json:"num_cpu"`
	NumGoroutine int     `json:"num_goroutine"`
	MemAllocMB   float64 `json:"mem_alloc_mb"`
	MemSysMB     float64 `json:"mem_sys_mb"`
	NumGC        uint32  `json:"num_gc"`
}

// CounterMetrics contains cumulative counters
type CounterMetrics struct {
	ClientsAccepted int64 `json:"clients_accepted"`
	ClientsRejected int64 `json:"clients_rejected"`
	AcceptErrors    int64 `json:"accept_errors"`
	BytesDrained    int64 `json:"bytes_drained"`
	EventsDropped   int64 `json:"events_dropped"`
}

// GaugeMetrics contains current state values
type GaugeMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	Subscribers      int `json:"subscribers"`
	WebClients       int `json:"web_clients"`
}

// SessionMetrics summarizes recently closed connections
type SessionMetrics struct {
	Samples int     `json:"samples"`
	AvgSec  float64 `json:"avg_sec"`
	P95Sec  float64 `json:"p95_sec"`
	MaxSec  float64 `json:"max_sec"`
}

// NewMetrics creates a metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
		sessions:  make([]time.Duration, maxSessionSamples),
	}
}

// RecordAccept counts an admitted connection
func (m *Metrics) RecordAccept() {
	m.ClientsAccepted.Add(1)
}

// RecordReject counts a connection refused by the limiter
func (m *Metrics) RecordReject() {
	m.ClientsRejected.Add(1)
}

// RecordAcceptError counts a failed accept call
func (m *Metrics) RecordAcceptError() {
	m.AcceptErrors.Add(1)
}

// AddBytesDrained accumulates drained bytes
func (m *Metrics) AddBytesDrained(n int64) {
	m.BytesDrained.Add(n)
}

// RecordEventDropped counts an event lost to a slow subscriber
func (m *Metrics) RecordEventDropped() {
	m.EventsDropped.Add(1)
}

// RecordSession records the lifetime of a closed connection
func (m *Metrics) RecordSession(d time.Duration) {
	m.sessionMu.Lock()
	m.sessions[m.sessionIndex] = d
	m.sessionIndex = (m.sessionIndex + 1) % maxSessionSamples
	m.sessionMu.Unlock()
}

// Snapshot returns a point-in-time view of all metrics. The gauge
// provider supplies current-state values owned by other components.
func (m *Metrics) Snapshot(gaugeProvider func() GaugeMetrics) *MetricsSnapshot {
	now := time.Now()
	uptime := now.Sub(m.startTime)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var gauges GaugeMetrics
	if gaugeProvider != nil {
		gauges = gaugeProvider()
	}

	return &MetricsSnapshot{
		Timestamp: now,
		Uptime:    uptime.Round(time.Second).String(),
		UptimeSec: uptime.Seconds(),
		System: SystemMetrics{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			NumGoroutine: runtime.NumGoroutine(),
			MemAllocMB:   float64(memStats.Alloc) / 1024 / 1024,
			MemSysMB:     float64(memStats.Sys) / 1024 / 1024,
			NumGC:        memStats.NumGC,
		},
		Counters: CounterMetrics{
			ClientsAccepted: m.ClientsAccepted.Load(),
			ClientsRejected: m.ClientsRejected.Load(),
			AcceptErrors:    m.AcceptErrors.Load(),
			BytesDrained:    m.BytesDrained.Load(),
			EventsDropped:   m.EventsDropped.Load(),
		},
		Gauges:   gauges,
		Sessions: m.sessionStats(),
	}
}

func (m *Metrics) sessionStats() SessionMetrics {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	var valid []time.Duration
	for _, d := range m.sessions {
		if d > 0 {
			valid = append(valid, d)
		}
	}

	if len(valid) == 0 {
		return SessionMetrics{}
	}

	var total time.Duration
	maxVal := time.Duration(0)
	for _, d := range valid {
		total += d
		if d > maxVal {
			maxVal = d
		}
	}
	avg := total / time.Duration(len(valid))

	// Insertion sort; the sample window is small
	sorted := make([]time.Duration, len(valid))
	copy(sorted, valid)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	p95Index := int(float64(len(sorted)) * 0.95)
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return SessionMetrics{
		Samples: len(valid),
		AvgSec:  avg.Seconds(),
		P95Sec:  sorted[p95Index].Seconds(),
		MaxSec:  maxVal.Seconds(),
	}
}

// Reset clears all counters and samples
func (m *Metrics) Reset() {
	m.startTime = time.Now()
	m.ClientsAccepted.Store(0)
	m.ClientsRejected.Store(0)
	m.AcceptErrors.Store(0)
	m.BytesDrained.Store(0)
	m.EventsDropped.Store(0)

	m.sessionMu.Lock()
	m.sessions = make([]time.Duration, maxSessionSamples)
	m.sessionIndex = 0
	m.sessionMu.Unlock()
}
