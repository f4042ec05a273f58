// Package metrics collects in-process statistics about generation sessions.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	window     = 10 * time.Second
	maxSamples = 1000
)

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	TotalSessions     int64   `json:"total_sessions"`
	ActiveSessions    int64   `json:"active_sessions"`
	CompletedSessions int64   `json:"completed_sessions"`
	CancelledSessions int64   `json:"cancelled_sessions"`
	FailedSessions    int64   `json:"failed_sessions"`
	ChunksGenerated   int64   `json:"chunks_generated"`
	ChunksPerSecond   float64 `json:"chunks_per_second"`
	AvgWaitMs         float64 `json:"avg_wait_ms"`
	AvgTTFTMs         float64 `json:"avg_ttft_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// Outcome is how a session ended, as far as the collector is concerned.
type Outcome int

const (
	Completed Outcome = iota
	Cancelled
	Failed
)

// Collector is a thread-safe metrics store.
type Collector struct {
	startTime time.Time
	now       func() time.Time

	total     atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	cancelled atomic.Int64
	failed    atomic.Int64
	chunks    atomic.Int64

	mu          sync.Mutex
	chunkEvents []chunkEvent
	waitSamples []float64
	ttftSamples []float64
}

type chunkEvent struct {
	at    time.Time
	count int64
}

// NewCollector creates a Collector whose uptime starts now.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		now:       time.Now,
	}
}

// SessionStart marks a session as active and returns a done function
// reporting its outcome. The done function must be called exactly once.
func (c *Collector) SessionStart() func(Outcome) {
	c.total.Add(1)
	c.active.Add(1)
	return func(o Outcome) {
		c.active.Add(-1)
		switch o {
		case Completed:
			c.completed.Add(1)
		case Cancelled:
			c.cancelled.Add(1)
		case Failed:
			c.failed.Add(1)
		}
	}
}

// RecordWait records how long a session waited for the engine.
func (c *Collector) RecordWait(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitSamples = appendSample(c.waitSamples, ms(d))
}

// RecordChunks records n generated chunks. A positive ttft is added to the
// time-to-first-chunk samples.
func (c *Collector) RecordChunks(n int64, ttft time.Duration) {
	if n <= 0 {
		return
	}
	c.chunks.Add(n)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.chunkEvents = append(c.chunkEvents, chunkEvent{at: c.now(), count: n})
	if ttft > 0 {
		c.ttftSamples = appendSample(c.ttftSamples, ms(ttft))
	}
	c.prune()
}

// Snapshot returns the current metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Pruning on read lets the rate decay to zero once generation stops.
	c.prune()

	var windowChunks int64
	for _, ev := range c.chunkEvents {
		windowChunks += ev.count
	}
	rate := float64(0)
	if len(c.chunkEvents) > 1 {
		span := c.chunkEvents[len(c.chunkEvents)-1].at.Sub(c.chunkEvents[0].at).Seconds()
		if span > 0 {
			rate = float64(windowChunks) / span
		}
	}

	return Snapshot{
		TotalSessions:     c.total.Load(),
		ActiveSessions:    c.active.Load(),
		CompletedSessions: c.completed.Load(),
		CancelledSessions: c.cancelled.Load(),
		FailedSessions:    c.failed.Load(),
		ChunksGenerated:   c.chunks.Load(),
		ChunksPerSecond:   rate,
		AvgWaitMs:         average(c.waitSamples),
		AvgTTFTMs:         average(c.ttftSamples),
		UptimeSeconds:     c.now().Sub(c.startTime).Seconds(),
	}
}

func (c *Collector) prune() {
	cutoff := c.now().Add(-window)
	for len(c.chunkEvents) > 0 && c.chunkEvents[0].at.Before(cutoff) {
		c.chunkEvents = c.chunkEvents[1:]
	}
}

func appendSample(samples []float64, v float64) []float64 {
	samples = append(samples, v)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	return samples
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
