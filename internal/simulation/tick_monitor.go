package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed simulation step durations.
type TickMetricsSnapshot struct {
	Samples int
	Average time.Duration
	Max     time.Duration
	Last    time.Duration
}

// AverageFPS converts the average step duration into steps per second.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor collects step timing for the /metrics endpoint. A zero sample
// set snapshots as all zeroes rather than dividing by zero.
type TickMonitor struct {
	mu    sync.Mutex
	stats tickStats
}

type tickStats struct {
	count int
	sum   time.Duration
	peak  time.Duration
	last  time.Duration
}

// NewTickMonitor constructs an empty monitor ready to collect samples.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the wall time of one completed simulation step.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.stats.count++
	m.stats.sum += duration
	if duration > m.stats.peak {
		m.stats.peak = duration
	}
	m.stats.last = duration
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated step statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	snapshot := m.stats
	m.mu.Unlock()

	out := TickMetricsSnapshot{Samples: snapshot.count, Max: snapshot.peak, Last: snapshot.last}
	if snapshot.count > 0 {
		out.Average = snapshot.sum / time.Duration(snapshot.count)
	}
	return out
}

// Reset discards the accumulated statistics, e.g. after a mode switch.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.stats = tickStats{}
	m.mu.Unlock()
}
