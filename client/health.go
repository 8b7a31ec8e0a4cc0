package client

import (
	"context"
	"sync"
	"time"

	"sutext.github.io/gamelink/xerr"
)

// healthMonitor probes the connection while it is Connected. A probe is a
// Ping frame; the matching Pong yields one round-trip sample. The probe is
// suppressed when other traffic was seen within the interval.
type healthMonitor struct {
	mu        sync.Mutex
	interval  time.Duration
	timeout   time.Duration
	pong      chan time.Time
	last      time.Time
	sendPing  func() error
	onFailure func(error)
	onLatency func(time.Duration)
}

func newHealthMonitor(interval, timeout time.Duration) *healthMonitor {
	return &healthMonitor{
		interval: interval,
		timeout:  timeout,
		last:     time.Now(),
	}
}

// run blocks until ctx is cancelled. One run per connection.
func (h *healthMonitor) run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *healthMonitor) probe(ctx context.Context) {
	h.mu.Lock()
	if time.Since(h.last) < h.interval {
		h.mu.Unlock()
		return
	}
	pong := make(chan time.Time, 1)
	h.pong = pong
	h.mu.Unlock()

	sent := time.Now()
	if err := h.sendPing(); err != nil {
		h.onFailure(err)
		return
	}
	select {
	case <-ctx.Done():
	case at := <-pong:
		h.onLatency(at.Sub(sent))
	case <-time.After(h.timeout):
		h.onFailure(xerr.ProbeTimeout)
	}
}

// markActivity records link traffic so the next probe can be skipped.
func (h *healthMonitor) markActivity() {
	h.mu.Lock()
	h.last = time.Now()
	h.mu.Unlock()
}

// handlePong resolves an outstanding probe.
func (h *healthMonitor) handlePong() {
	h.mu.Lock()
	pong := h.pong
	h.pong = nil
	h.mu.Unlock()
	if pong != nil {
		select {
		case pong <- time.Now():
		default:
		}
	}
}
