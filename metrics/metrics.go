// Package metrics accumulates process-lifetime cache counters.
//
// The Collector is updated by the store adapter on every operation and read
// back as a point-in-time snapshot. Counters reset to zero on process restart
// or via an explicit Reset (used by test harnesses between scenarios).
package metrics

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Collector holds in-memory operation counters. All methods are safe for
// concurrent use. A disabled Collector turns every recording call into a
// no-op while keeping Stats callable.
type Collector struct {
	enabled bool

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errors  atomic.Int64

	latencyNanos atomic.Int64
	latencyCount atomic.Int64
}

// NewCollector returns a Collector. When enabled is false, recording calls
// are no-ops.
func NewCollector(enabled bool) *Collector {
	return &Collector{enabled: enabled}
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.enabled
}

func (c *Collector) Hit() {
	if c.enabled {
		c.hits.Add(1)
	}
}

func (c *Collector) Miss() {
	if c.enabled {
		c.misses.Add(1)
	}
}

func (c *Collector) Set() {
	if c.enabled {
		c.sets.Add(1)
	}
}

func (c *Collector) Delete() {
	if c.enabled {
		c.deletes.Add(1)
	}
}

// DeleteN records n deletions from one bulk operation.
func (c *Collector) DeleteN(n int) {
	if c.enabled && n > 0 {
		c.deletes.Add(int64(n))
	}
}

func (c *Collector) Error() {
	if c.enabled {
		c.errors.Add(1)
	}
}

// Observe records the latency of one store round-trip.
func (c *Collector) Observe(d time.Duration) {
	if !c.enabled {
		return
	}
	c.latencyNanos.Add(int64(d))
	c.latencyCount.Add(1)
}

// Operations is the counter section of a stats snapshot.
type Operations struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Errors  int64 `json:"errors"`
}

// Performance is the latency section of a stats snapshot.
type Performance struct {
	AvgLatency time.Duration `json:"avgLatency"`
}

// Memory is the process-memory section of a stats snapshot.
type Memory struct {
	Used uint64 `json:"used"`
}

// Stats is a point-in-time snapshot of collector state.
type Stats struct {
	Operations  Operations  `json:"operations"`
	Performance Performance `json:"performance"`
	Memory      Memory      `json:"memory"`
}

// Stats returns the current snapshot. Memory.Used is the resident set size
// of this process, zero if it cannot be determined.
func (c *Collector) Stats() Stats {
	s := Stats{
		Operations: Operations{
			Hits:    c.hits.Load(),
			Misses:  c.misses.Load(),
			Sets:    c.sets.Load(),
			Deletes: c.deletes.Load(),
			Errors:  c.errors.Load(),
		},
		Memory: Memory{Used: residentMemory()},
	}
	if n := c.latencyCount.Load(); n > 0 {
		s.Performance.AvgLatency = time.Duration(c.latencyNanos.Load() / n)
	}
	return s
}

// Reset zeroes every counter.
func (c *Collector) Reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.deletes.Store(0)
	c.errors.Store(0)
	c.latencyNanos.Store(0)
	c.latencyCount.Store(0)
}

func residentMemory() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		return info.RSS
	}
	return 0
}
