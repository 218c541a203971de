// Package input gates inbound command frames on sequencing, freshness, and
// rate so a misbehaving or laggy controller cannot flood the session.
package input

import (
	"sync"
	"time"

	"multiverse/sim/internal/logging"
)

// Clock exposes the current time for gating decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config controls the freshness and throughput gates applied to command frames.
type Config struct {
	MaxAge      time.Duration
	MinInterval time.Duration
}

// DropReason enumerates why a command frame was rejected by the gate.
type DropReason string

const (
	DropReasonNone        DropReason = ""
	DropReasonSequence    DropReason = "sequence"
	DropReasonStale       DropReason = "stale"
	DropReasonRateLimited DropReason = "rate_limit"
)

// String returns the textual representation of the drop reason.
func (r DropReason) String() string { return string(r) }

// Decision summarises whether a command frame passed validation.
type Decision struct {
	Accepted bool
	Reason   DropReason
	Delay    time.Duration
}

// Frame captures the metadata required to gate one command update.
type Frame struct {
	ClientID   string
	SequenceID uint64
	SentAt     time.Time
}

// cursor is the per-client high-water mark the sequencing check runs against.
type cursor struct {
	seq        uint64
	acceptedAt time.Time
}

// DropCounters aggregates per-reason drop counts for one client.
type DropCounters struct {
	Sequence    uint64 `json:"sequence"`
	Stale       uint64 `json:"stale"`
	RateLimited uint64 `json:"rate_limited"`
}

// Gate validates command frames per client and keeps drop counters for the
// metrics endpoint.
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	logger  *logging.Logger
	cursors map[string]*cursor
	drops   map[string]DropCounters
}

// Option customises gate construction.
type Option func(*Gate)

// WithClock overrides the clock used for staleness calculations.
func WithClock(clock Clock) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// NewGate constructs a gate with the supplied configuration and logger.
// Non-positive intervals disable the corresponding check.
func NewGate(cfg Config, logger *logging.Logger, opts ...Option) *Gate {
	if cfg.MaxAge < 0 {
		cfg.MaxAge = 0
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	gate := &Gate{
		cfg:     cfg,
		clock:   systemClock{},
		logger:  logger,
		cursors: make(map[string]*cursor),
		drops:   make(map[string]DropCounters),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}
	return gate
}

// Evaluate applies sequencing, freshness, and throughput guards to the frame.
func (g *Gate) Evaluate(frame Frame) Decision {
	if g == nil || frame.ClientID == "" {
		return Decision{Accepted: true}
	}
	now := g.clock.Now()
	var delay time.Duration
	if !frame.SentAt.IsZero() {
		if d := now.Sub(frame.SentAt); d > 0 {
			delay = d
		}
	}

	g.mu.Lock()
	cur := g.cursors[frame.ClientID]
	if cur == nil {
		cur = &cursor{}
		g.cursors[frame.ClientID] = cur
	}
	reason := g.classifyLocked(cur, frame.SequenceID, delay, now)
	if reason == DropReasonNone {
		cur.seq = frame.SequenceID
		cur.acceptedAt = now
	} else {
		counters := g.drops[frame.ClientID]
		switch reason {
		case DropReasonSequence:
			counters.Sequence++
		case DropReasonStale:
			counters.Stale++
		case DropReasonRateLimited:
			counters.RateLimited++
		}
		g.drops[frame.ClientID] = counters
	}
	g.mu.Unlock()

	if reason != DropReasonNone {
		if g.logger != nil {
			g.logger.Debug("command frame dropped",
				logging.String("client_id", frame.ClientID),
				logging.String("reason", reason.String()))
		}
		return Decision{Reason: reason, Delay: delay}
	}
	return Decision{Accepted: true, Delay: delay}
}

// classifyLocked returns the drop reason for the frame, or DropReasonNone.
// The first frame a client ever sends skips the interval and age checks.
func (g *Gate) classifyLocked(cur *cursor, seq uint64, delay time.Duration, now time.Time) DropReason {
	if seq == 0 {
		return DropReasonSequence
	}
	if cur.seq == 0 {
		return DropReasonNone
	}
	if seq <= cur.seq {
		return DropReasonSequence
	}
	if g.cfg.MinInterval > 0 && now.Sub(cur.acceptedAt) < g.cfg.MinInterval {
		return DropReasonRateLimited
	}
	if g.cfg.MaxAge > 0 && delay > g.cfg.MaxAge {
		return DropReasonStale
	}
	return DropReasonNone
}

// Forget clears cached sequencing and counters for a disconnected client.
func (g *Gate) Forget(clientID string) {
	if g == nil || clientID == "" {
		return
	}
	g.mu.Lock()
	delete(g.cursors, clientID)
	delete(g.drops, clientID)
	g.mu.Unlock()
}

// Metrics returns a snapshot of the latest drop counters per client.
func (g *Gate) Metrics() map[string]DropCounters {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.drops) == 0 {
		return nil
	}
	out := make(map[string]DropCounters, len(g.drops))
	for clientID, counters := range g.drops {
		out[clientID] = counters
	}
	return out
}
