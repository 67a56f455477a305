package daemon

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	"waysock.dev/go/waysock/internal/config"
)

// AcceptLimiter bounds the display accept path before any connection
// state is allocated: a token bucket for connection rate plus a hard
// cap on concurrent clients. Unix sockets carry no peer address to
// key on, so both limits are global.
type AcceptLimiter struct {
	maxClients int64
	current    atomic.Int64
	perSec     *rate.Limiter
}

// NewAcceptLimiter builds a limiter from the configured limits
func NewAcceptLimiter(limits config.LimitsConfig) *AcceptLimiter {
	return &AcceptLimiter{
		maxClients: int64(limits.MaxClients),
		perSec:     rate.NewLimiter(rate.Limit(limits.AcceptRate), limits.AcceptBurst),
	}
}

// Admit reports whether a new connection may be accepted, reserving a
// slot when it may. Every admitted connection must be paired with one
// Release when it closes.
func (l *AcceptLimiter) Admit() error {
	if !l.perSec.Allow() {
		return fmt.Errorf("connection rate exceeded")
	}

	if l.current.Add(1) > l.maxClients {
		l.current.Add(-1)
		return fmt.Errorf("client limit reached (%d)", l.maxClients)
	}

	return nil
}

// Release returns an admitted connection's slot
func (l *AcceptLimiter) Release() {
	l.current.Add(-1)
}

// AcceptLimiterStats is a snapshot of the limiter's state
type AcceptLimiterStats struct {
	CurrentClients int64 `json:"current_clients"`
	MaxClients     int64 `json:"max_clients"`
}

// Stats returns the current limiter state
func (l *AcceptLimiter) Stats() AcceptLimiterStats {
	return AcceptLimiterStats{
		CurrentClients: l.current.Load(),
		MaxClients:     l.maxClients,
	}
}
