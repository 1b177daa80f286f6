package metrics

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Track latencies from 1µs up to 60s (recorded in nanoseconds).
	lowestDiscernible = int64(time.Microsecond)
	highestTrackable  = int64(60 * time.Second)
	significantDigits = 3

	maxShards = 32
)

// RelativeError is the worst-case relative error of any percentile or
// standard deviation reported by a Histogram.
var RelativeError = math.Pow10(-significantDigits)

// Histogram is a latency histogram that many goroutines can record into at
// once. Writers are spread across independently locked shards so no single
// lock serializes every worker. TakeIntervalSnapshot swaps each shard's live
// histogram for an empty spare, so a writer is only ever blocked for the
// duration of a pointer swap.
type Histogram struct {
	shards []*histShard
	next   atomic.Uint64

	// mu guards everything below and the shard spares.
	mu            sync.Mutex
	interval      *hdrhistogram.Histogram
	intervalStats sampleStats
	cumulative    *hdrhistogram.Histogram
	cumStats      sampleStats
}

type histShard struct {
	mu    sync.Mutex
	live  *hdrhistogram.Histogram
	spare *hdrhistogram.Histogram
	stats sampleStats
}

// sampleStats tracks exact extrema and sum next to the bucketed counts so
// min, max and mean are reported without quantization.
type sampleStats struct {
	count int64
	sum   int64
	min   int64
	max   int64
}

func (s *sampleStats) add(v int64) {
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.count++
	s.sum += v
}

func (s *sampleStats) merge(o sampleStats) {
	if o.count == 0 {
		return
	}
	if s.count == 0 || o.min < s.min {
		s.min = o.min
	}
	if o.max > s.max {
		s.max = o.max
	}
	s.count += o.count
	s.sum += o.sum
}

// NewHistogram creates a Histogram with one shard per available CPU.
func NewHistogram() *Histogram {
	return NewHistogramWithShards(runtime.GOMAXPROCS(0))
}

// NewHistogramWithShards creates a Histogram with an explicit shard count.
func NewHistogramWithShards(n int) *Histogram {
	if n < 1 {
		n = 1
	}
	if n > maxShards {
		n = maxShards
	}
	h := &Histogram{
		shards:     make([]*histShard, n),
		interval:   newHDR(),
		cumulative: newHDR(),
	}
	for i := range h.shards {
		h.shards[i] = &histShard{live: newHDR(), spare: newHDR()}
	}
	return h
}

func newHDR() *hdrhistogram.Histogram {
	return hdrhistogram.New(lowestDiscernible, highestTrackable, significantDigits)
}

// Record adds one latency sample. Negative durations are recorded as zero.
func (h *Histogram) Record(d time.Duration) {
	v := int64(d)
	if v < 0 {
		v = 0
	}
	bucketed := v
	if bucketed > highestTrackable {
		bucketed = highestTrackable
	}

	s := h.shards[(h.next.Add(1)-1)%uint64(len(h.shards))]
	s.mu.Lock()
	_ = s.live.RecordValue(bucketed)
	s.stats.add(v)
	s.mu.Unlock()
}

// TakeIntervalSnapshot extracts every sample recorded since the previous
// call, folds it into the cumulative view and returns its summary.
func (h *Histogram) TakeIntervalSnapshot() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.interval.Reset()
	h.intervalStats = sampleStats{}
	for _, s := range h.shards {
		s.mu.Lock()
		drained, stats := s.live, s.stats
		s.live, s.spare = s.spare, drained
		s.stats = sampleStats{}
		s.mu.Unlock()

		// drained is now the shard's spare; only snapshot and reset touch it.
		h.interval.Merge(drained)
		h.intervalStats.merge(stats)
		drained.Reset()
	}

	h.cumulative.Merge(h.interval)
	h.cumStats.merge(h.intervalStats)
	return summarize(h.interval, h.intervalStats)
}

// Cumulative summarizes everything folded in by TakeIntervalSnapshot since
// the last Reset. Samples recorded after the latest snapshot are not
// included until the next one.
func (h *Histogram) Cumulative() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return summarize(h.cumulative, h.cumStats)
}

// Reset discards live, interval and cumulative state.
func (h *Histogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.shards {
		s.mu.Lock()
		s.live.Reset()
		s.stats = sampleStats{}
		s.mu.Unlock()
	}
	h.interval.Reset()
	h.intervalStats = sampleStats{}
	h.cumulative.Reset()
	h.cumStats = sampleStats{}
}

func summarize(hist *hdrhistogram.Histogram, stats sampleStats) Summary {
	if stats.count == 0 {
		return Summary{}
	}
	min := time.Duration(stats.min)
	max := time.Duration(stats.max)
	clamp := func(v int64) time.Duration {
		d := time.Duration(v)
		if d < min {
			return min
		}
		if d > max {
			return max
		}
		return d
	}
	return Summary{
		Count:  stats.count,
		Min:    min,
		Max:    max,
		Mean:   time.Duration(stats.sum / stats.count),
		P50:    clamp(hist.ValueAtQuantile(50)),
		P90:    clamp(hist.ValueAtQuantile(90)),
		P99:    clamp(hist.ValueAtQuantile(99)),
		StdDev: time.Duration(hist.StdDev()),
	}
}
