package metrics_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/lokal-id/netstress/internal/metrics"
)

func TestHistogramIntervalSnapshot(t *testing.T) {
	h := metrics.NewHistogramWithShards(4)
	h.Record(1 * time.Millisecond)
	h.Record(2 * time.Millisecond)
	h.Record(3 * time.Millisecond)

	s := h.TakeIntervalSnapshot()
	if s.Count != 3 {
		t.Fatalf("Count = %d, want 3", s.Count)
	}
	if s.Min != time.Millisecond || s.Max != 3*time.Millisecond {
		t.Fatalf("min/max = %s/%s, want 1ms/3ms", s.Min, s.Max)
	}
	if s.Mean != 2*time.Millisecond {
		t.Fatalf("Mean = %s, want 2ms", s.Mean)
	}
	if s.P99 != 3*time.Millisecond {
		t.Fatalf("P99 = %s, want 3ms", s.P99)
	}
	if rel := math.Abs(float64(s.P50-2*time.Millisecond)) / float64(2*time.Millisecond); rel > metrics.RelativeError*2 {
		t.Fatalf("P50 = %s, relative error %.5f too large", s.P50, rel)
	}
	if s.StdDev <= 0 {
		t.Fatalf("StdDev = %s, want > 0", s.StdDev)
	}

	if again := h.TakeIntervalSnapshot(); again != (metrics.Summary{}) {
		t.Fatalf("interval after drain = %+v, want empty", again)
	}

	cum := h.Cumulative()
	if cum.Count != 3 || cum.Min != time.Millisecond || cum.Max != 3*time.Millisecond {
		t.Fatalf("cumulative = %+v", cum)
	}
}

func TestHistogramCumulativeAcrossIntervals(t *testing.T) {
	h := metrics.NewHistogramWithShards(2)
	h.Record(5 * time.Millisecond)
	h.TakeIntervalSnapshot()
	h.Record(1 * time.Millisecond)
	h.Record(9 * time.Millisecond)

	s := h.TakeIntervalSnapshot()
	if s.Count != 2 || s.Mean != 5*time.Millisecond {
		t.Fatalf("interval = %+v, want 2 samples with 5ms mean", s)
	}

	cum := h.Cumulative()
	if cum.Count != 3 {
		t.Fatalf("cumulative Count = %d, want 3", cum.Count)
	}
	if cum.Min != time.Millisecond || cum.Max != 9*time.Millisecond || cum.Mean != 5*time.Millisecond {
		t.Fatalf("cumulative = %+v", cum)
	}
}

func TestHistogramReset(t *testing.T) {
	h := metrics.NewHistogram()
	h.Record(time.Millisecond)
	h.TakeIntervalSnapshot()
	h.Record(time.Millisecond)

	h.Reset()

	if got := h.Cumulative(); got != (metrics.Summary{}) {
		t.Fatalf("cumulative after reset = %+v", got)
	}
	if got := h.TakeIntervalSnapshot(); got != (metrics.Summary{}) {
		t.Fatalf("interval after reset = %+v", got)
	}
}

func TestHistogramOutOfRangeValues(t *testing.T) {
	h := metrics.NewHistogramWithShards(1)
	h.Record(-time.Second)
	h.Record(2 * time.Minute)

	s := h.TakeIntervalSnapshot()
	if s.Count != 2 {
		t.Fatalf("Count = %d, want 2", s.Count)
	}
	if s.Min != 0 {
		t.Fatalf("Min = %s, want 0", s.Min)
	}
	if s.Max != 2*time.Minute {
		t.Fatalf("Max = %s, want exact 2m", s.Max)
	}
}

func TestHistogramConcurrentRecordAndSnapshot(t *testing.T) {
	h := metrics.NewHistogramWithShards(8)
	const writers, perWriter = 8, 1000

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				h.Record(time.Duration(j+1) * time.Microsecond)
			}
		}()
	}

	var seen int64
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			seen += h.TakeIntervalSnapshot().Count
		}
	}
	seen += h.TakeIntervalSnapshot().Count

	if seen != writers*perWriter {
		t.Fatalf("snapshots saw %d samples, want %d", seen, writers*perWriter)
	}
	if got := h.Cumulative().Count; got != writers*perWriter {
		t.Fatalf("cumulative Count = %d, want %d", got, writers*perWriter)
	}
}

func TestSummaryInMillis(t *testing.T) {
	s := metrics.Summary{Count: 1, Min: 1500 * time.Microsecond, Max: 2 * time.Millisecond}
	ms := s.InMillis()
	if ms.Min != 1.5 || ms.Max != 2.0 || ms.Count != 1 {
		t.Fatalf("InMillis = %+v", ms)
	}
}
