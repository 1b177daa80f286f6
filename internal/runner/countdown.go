package runner

import (
	"context"
	"sync"
)

// Countdown is a completion latch for a phase. Every admitted unit calls Add
// before it is submitted and Done once its outcome is recorded. After Seal,
// Wait returns as soon as the pending count drops to zero.
type Countdown struct {
	mu      sync.Mutex
	pending int64
	settled int64
	sealed  bool
	done    chan struct{}
}

func NewCountdown() *Countdown {
	return &Countdown{done: make(chan struct{})}
}

func (c *Countdown) Add(n int64) {
	c.mu.Lock()
	c.pending += n
	c.mu.Unlock()
}

func (c *Countdown) Done() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	c.settled++
	c.tripLocked()
}

// Seal marks that no more units will be added.
func (c *Countdown) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	c.tripLocked()
}

func (c *Countdown) tripLocked() {
	if !c.sealed || c.pending > 0 {
		return
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// Pending returns the number of units added but not yet done.
func (c *Countdown) Pending() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Settled returns the number of units that reported Done.
func (c *Countdown) Settled() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// Wait blocks until the countdown is sealed and drained or ctx ends.
func (c *Countdown) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is closed once the countdown is sealed and drained.
func (c *Countdown) C() <-chan struct{} { return c.done }
