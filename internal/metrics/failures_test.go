package metrics_test

import (
	"sync"
	"testing"

	"github.com/lokal-id/netstress/internal/metrics"
)

func TestFailureCounterDrainDelta(t *testing.T) {
	var c metrics.FailureCounter
	for i := 0; i < 5; i++ {
		c.Inc()
	}
	if got := c.DrainDelta(); got != 5 {
		t.Fatalf("first drain = %d, want 5", got)
	}
	if got := c.DrainDelta(); got != 0 {
		t.Fatalf("second drain = %d, want 0", got)
	}

	c.Inc()
	c.Inc()
	if got := c.DrainDelta(); got != 2 {
		t.Fatalf("third drain = %d, want 2", got)
	}
	if got := c.Total(); got != 7 {
		t.Fatalf("Total = %d, want 7", got)
	}
}

func TestFailureCounterReset(t *testing.T) {
	var c metrics.FailureCounter
	c.Inc()
	c.DrainDelta()
	c.Inc()

	c.Reset()

	if c.Total() != 0 || c.DrainDelta() != 0 {
		t.Fatal("counter not cleared by Reset")
	}
	c.Inc()
	if got := c.DrainDelta(); got != 1 {
		t.Fatalf("drain after reset = %d, want 1", got)
	}
}

func TestFailureCounterConcurrentDrainsNeverDoubleCount(t *testing.T) {
	var c metrics.FailureCounter
	const incs = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < incs; i++ {
			c.Inc()
		}
	}()

	var mu sync.Mutex
	var drained int64
	for d := 0; d < 4; d++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				v := c.DrainDelta()
				mu.Lock()
				drained += v
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	drained += c.DrainDelta()

	if drained != incs {
		t.Fatalf("drained %d, want %d", drained, incs)
	}
}
