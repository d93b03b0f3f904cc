// Package telemetry keeps a bounded rolling window of attack statistics.
// The buffer is a fixed-capacity ring: growth is capped by construction,
// not by periodic cleanup, and the oldest record is evicted first.
// Telemetry is best-effort aggregate data; the audit log is the durable
// record.
package telemetry

import (
	"sync"
	"time"

	"github.com/DollhouseMCP/contentguard/internal/trust"
)

// DefaultCapacity bounds the ring when no capacity is configured.
const DefaultCapacity = 1000

// AttackRecord is one detected attack event.
type AttackRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	Vector     string         `json:"vector"` // signature category or finding class
	Severity   trust.Severity `json:"severity"`
	OriginHint string         `json:"origin_hint,omitempty"`
}

// Snapshot is the JSON-serializable aggregate view of the current window.
type Snapshot struct {
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
	TotalRecords   int            `json:"total_records"`
	PerVector      map[string]int `json:"per_vector_counts"`
	PerSeverity    map[string]int `json:"per_severity_counts"`
	PerHourBuckets map[string]int `json:"per_hour_buckets"`
}

// Collector owns the ring buffer. The critical section is a plain append
// plus evict, kept short so foreground validation never stalls here.
type Collector struct {
	mu    sync.Mutex
	ring  []AttackRecord
	head  int // next write position
	count int
}

// NewCollector builds a collector with the given ring capacity.
func NewCollector(capacity int) *Collector {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Collector{ring: make([]AttackRecord, capacity)}
}

// Record appends one attack record, evicting the oldest at capacity.
func (c *Collector) Record(rec AttackRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.ring[c.head] = rec
	c.head = (c.head + 1) % len(c.ring)
	if c.count < len(c.ring) {
		c.count++
	}
	c.mu.Unlock()
}

// Len returns the number of records currently held.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// ExportSnapshot aggregates the current window. Calling it twice with no
// intervening Record returns identical snapshots; it never mutates the
// underlying buffer.
func (c *Collector) ExportSnapshot() Snapshot {
	c.mu.Lock()
	records := make([]AttackRecord, 0, c.count)
	start := c.head - c.count
	if start < 0 {
		start += len(c.ring)
	}
	for i := 0; i < c.count; i++ {
		records = append(records, c.ring[(start+i)%len(c.ring)])
	}
	c.mu.Unlock()

	snap := Snapshot{
		TotalRecords:   len(records),
		PerVector:      make(map[string]int),
		PerSeverity:    make(map[string]int),
		PerHourBuckets: make(map[string]int),
	}
	for i, rec := range records {
		if i == 0 || rec.Timestamp.Before(snap.WindowStart) {
			snap.WindowStart = rec.Timestamp
		}
		if rec.Timestamp.After(snap.WindowEnd) {
			snap.WindowEnd = rec.Timestamp
		}
		snap.PerVector[rec.Vector]++
		snap.PerSeverity[string(rec.Severity)]++
		snap.PerHourBuckets[rec.Timestamp.UTC().Format("2006-01-02T15")]++
	}
	return snap
}
