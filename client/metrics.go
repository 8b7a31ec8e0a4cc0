package client

import (
	"sync"
	"sync/atomic"
	"time"
)

const latencyRingCapacity = 100

// Metrics accumulates connection counters. Counters are owned by the client's
// own loops; observers read snapshots.
type Metrics struct {
	totalConnections    atomic.Uint64
	totalDisconnections atomic.Uint64
	totalErrors         atomic.Uint64
	latency             latencyRing
}

// MetricsSnapshot is a read-only copy of the counters.
type MetricsSnapshot struct {
	TotalConnections    uint64
	TotalDisconnections uint64
	TotalErrors         uint64
	AverageLatency      time.Duration
}

func (m *Metrics) connectionOpened() {
	m.totalConnections.Add(1)
}
func (m *Metrics) connectionClosed() {
	m.totalDisconnections.Add(1)
}
func (m *Metrics) errorOccurred() {
	m.totalErrors.Add(1)
}
func (m *Metrics) recordLatency(rtt time.Duration) {
	m.latency.add(rtt)
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:    m.totalConnections.Load(),
		TotalDisconnections: m.totalDisconnections.Load(),
		TotalErrors:         m.totalErrors.Load(),
		AverageLatency:      m.latency.average(),
	}
}

// latencyRing is a fixed-capacity ring of round-trip samples. The oldest
// sample is evicted on overflow. Appended only by the health probe path.
type latencyRing struct {
	mu      sync.Mutex
	samples [latencyRingCapacity]time.Duration
	next    int
	count   int
}

func (r *latencyRing) add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples[r.next] = d
	r.next = (r.next + 1) % latencyRingCapacity
	if r.count < latencyRingCapacity {
		r.count++
	}
}

func (r *latencyRing) average() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < r.count; i++ {
		sum += r.samples[i]
	}
	return sum / time.Duration(r.count)
}
