// Package metrics provides in-process counters for the maintenance
// worker and the HTTP surface. The Collector is a leaf package with no
// internal dependencies; all increment methods are nil-receiver safe so
// callers never need to guard against a missing collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently.
type Snapshot struct {
	// Worker loop
	Ticks         int64
	TickFailures  int64
	RunsProcessed int64
	RunsFailed    int64

	// Maintenance sweeps
	RunsExpired     int64
	RecordsDeleted  int64
	RunsAbandoned   int64
	StatsPruned     int64
	StrandedRecover int64
	ZombieDirsSwept int64
}

// Collector accumulates service counters. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	ticks         int64
	tickFailures  int64
	runsProcessed int64
	runsFailed    int64

	runsExpired     int64
	recordsDeleted  int64
	runsAbandoned   int64
	statsPruned     int64
	strandedRecover int64
	zombieDirsSwept int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// IncTick records one completed worker tick.
func (c *Collector) IncTick() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
}

// IncTickFailure records a tick that ended in an error.
func (c *Collector) IncTickFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.tickFailures++
	c.mu.Unlock()
}

// IncRunProcessed records one run picked up and executed.
func (c *Collector) IncRunProcessed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsProcessed++
	c.mu.Unlock()
}

// IncRunFailed records one run that finished in failed state.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// IncRunExpired records one run wiped by the expiry sweep.
func (c *Collector) IncRunExpired() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsExpired++
	c.mu.Unlock()
}

// IncRecordDeleted records one run record dropped from the store.
func (c *Collector) IncRecordDeleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsDeleted++
	c.mu.Unlock()
}

// IncRunAbandoned records one uncommitted run dropped by the sweep.
func (c *Collector) IncRunAbandoned() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsAbandoned++
	c.mu.Unlock()
}

// AddStatsPruned records n statistic points pruned by age.
func (c *Collector) AddStatsPruned(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.statsPruned += n
	c.mu.Unlock()
}

// IncStrandedRecovered records one running record failed at boot.
func (c *Collector) IncStrandedRecovered() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.strandedRecover++
	c.mu.Unlock()
}

// IncZombieDirSwept records one orphaned cache directory removed.
func (c *Collector) IncZombieDirSwept() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.zombieDirsSwept++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Ticks:         c.ticks,
		TickFailures:  c.tickFailures,
		RunsProcessed: c.runsProcessed,
		RunsFailed:    c.runsFailed,

		RunsExpired:     c.runsExpired,
		RecordsDeleted:  c.recordsDeleted,
		RunsAbandoned:   c.runsAbandoned,
		StatsPruned:     c.statsPruned,
		StrandedRecover: c.strandedRecover,
		ZombieDirsSwept: c.zombieDirsSwept,
	}
}
