package metrics

import "sync/atomic"

// FailureCounter counts failed units. DrainDelta reports how many failures
// happened since its previous call.
type FailureCounter struct {
	total   atomic.Int64
	drained atomic.Int64
}

func (c *FailureCounter) Inc() {
	c.total.Add(1)
}

// Total returns the number of failures since the last Reset.
func (c *FailureCounter) Total() int64 {
	return c.total.Load()
}

// DrainDelta returns the failures recorded since the previous DrainDelta and
// advances the drained mark in the same atomic step, so concurrent drains
// never report the same failure twice.
func (c *FailureCounter) DrainDelta() int64 {
	for {
		last := c.drained.Load()
		current := c.total.Load()
		delta := current - last
		if delta < 0 {
			// Reset happened between the two loads.
			delta = current
		}
		if c.drained.CompareAndSwap(last, current) {
			return delta
		}
	}
}

// Reset zeroes the counter and its drained mark.
func (c *FailureCounter) Reset() {
	c.total.Store(0)
	c.drained.Store(0)
}
