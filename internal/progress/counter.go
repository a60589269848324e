package progress

import "sync/atomic"

// DefaultCycleLength is the number of ticks between distribution cycles.
const DefaultCycleLength = 3600

// Counter is the shared progress cell. Only the Broadcaster advances or resets it;
// everything else reads through Snapshot.
type Counter struct {
	value  atomic.Int64
	length int64
}

// NewCounter creates a counter in [0, cycleLength].
func NewCounter(cycleLength int) *Counter {
	if cycleLength <= 0 {
		cycleLength = DefaultCycleLength
	}
	return &Counter{length: int64(cycleLength)}
}

// Advance increments the counter unless it is already at the cycle length.
// saturated reports that the cycle length had been reached and nothing changed.
func (c *Counter) Advance() (value int, saturated bool) {
	for {
		cur := c.value.Load()
		if cur >= c.length {
			return int(cur), true
		}
		if c.value.CompareAndSwap(cur, cur+1) {
			return int(cur + 1), false
		}
	}
}

// Reset sets the counter back to 0.
func (c *Counter) Reset() { c.value.Store(0) }

// Snapshot returns the current value.
func (c *Counter) Snapshot() int { return int(c.value.Load()) }

// CycleLength returns the saturation point.
func (c *Counter) CycleLength() int { return int(c.length) }

// Restore sets the counter from a checkpoint, clamped to [0, cycle length].
func (c *Counter) Restore(v int) int {
	switch {
	case v < 0:
		v = 0
	case int64(v) > c.length:
		v = int(c.length)
	}
	c.value.Store(int64(v))
	return v
}
