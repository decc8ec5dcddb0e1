package stats

import (
	"sync/atomic"
)

// AtomicInt64Counter is a lock-free 64-bit integer counter
type AtomicInt64Counter int64

// Add atomically adds delta to the counter and returns the new value
func (c *AtomicInt64Counter) Add(delta int64) int64 {
	return atomic.AddInt64((*int64)(c), delta)
}

// Load atomically loads the current value
func (c *AtomicInt64Counter) Load() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// Store atomically stores the value
func (c *AtomicInt64Counter) Store(value int64) {
	atomic.StoreInt64((*int64)(c), value)
}

// AtomicCounters holds the process-wide aggregate counters. All fields are
// monotonically non-decreasing for the lifetime of the process.
type AtomicCounters struct {
	Total         AtomicInt64Counter
	Allowed       AtomicInt64Counter
	Blocked       AtomicInt64Counter
	BytesSent     AtomicInt64Counter
	BytesReceived AtomicInt64Counter
}

// Snapshot returns a copy of all counter values
func (a *AtomicCounters) Snapshot() Snapshot {
	return Snapshot{
		Total:         a.Total.Load(),
		Allowed:       a.Allowed.Load(),
		Blocked:       a.Blocked.Load(),
		BytesSent:     a.BytesSent.Load(),
		BytesReceived: a.BytesReceived.Load(),
	}
}

// counterSet provides the Collector counter methods on top of AtomicCounters
// so concrete collectors can embed it.
type counterSet struct {
	counters AtomicCounters
}

func (c *counterSet) IncrementTotal()        { c.counters.Total.Add(1) }
func (c *counterSet) IncrementAllowed()      { c.counters.Allowed.Add(1) }
func (c *counterSet) IncrementBlocked()      { c.counters.Blocked.Add(1) }
func (c *counterSet) AddBytesSent(n int64)   { c.counters.BytesSent.Add(n) }
func (c *counterSet) AddBytesReceived(n int64) {
	c.counters.BytesReceived.Add(n)
}
func (c *counterSet) Snapshot() Snapshot { return c.counters.Snapshot() }
