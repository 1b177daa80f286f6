package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokal-id/netstress/internal/metrics"
)

// Interval is one reporting tick worth of measurements.
type Interval struct {
	Phase    string
	Seq      int64
	At       time.Time
	Service  metrics.Summary
	Response metrics.Summary
	Failed   int64
}

// Emitter receives interval reports.
type Emitter interface {
	EmitInterval(iv Interval)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(iv Interval)

func (f EmitterFunc) EmitInterval(iv Interval) { f(iv) }

// MultiEmitter fans every interval out to each emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) EmitInterval(iv Interval) {
	for _, e := range m {
		if e != nil {
			e.EmitInterval(iv)
		}
	}
}

// Reporter drains the latency recorder and failure counter on a fixed
// cadence and emits one Interval per tick.
type Reporter struct {
	latency  *metrics.LatencyRecorder
	failures *metrics.FailureCounter
	emitter  Emitter
	interval time.Duration
	now      func() time.Time

	phase atomic.Value // string
	seq   atomic.Int64

	// tickMu serializes ticker-driven and manual ticks so one snapshot is
	// never split across two emitted intervals.
	tickMu   sync.Mutex
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	active   int32
}

// NewReporter creates a reporter that ticks every interval once started.
func NewReporter(latency *metrics.LatencyRecorder, failures *metrics.FailureCounter, emitter Emitter, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	if emitter == nil {
		emitter = MultiEmitter(nil)
	}
	r := &Reporter{
		latency:  latency,
		failures: failures,
		emitter:  emitter,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	r.phase.Store("")
	return r
}

// SetPhase tags subsequent intervals with phase.
func (r *Reporter) SetPhase(phase string) {
	r.phase.Store(phase)
}

// Start begins periodic reporting in a background goroutine.
func (r *Reporter) Start() {
	if !atomic.CompareAndSwapInt32(&r.active, 0, 1) {
		return // already running
	}
	r.ticker = time.NewTicker(r.interval)
	go r.run()
}

// Stop halts periodic reporting. It does not flush; call Tick afterwards
// to emit whatever was recorded since the last tick.
func (r *Reporter) Stop() {
	if atomic.CompareAndSwapInt32(&r.active, 1, 2) {
		close(r.done)
		r.ticker.Stop()
		<-r.finished
	}
}

func (r *Reporter) run() {
	defer close(r.finished)
	for {
		select {
		case <-r.ticker.C:
			r.Tick()
		case <-r.done:
			return
		}
	}
}

// Tick takes one interval snapshot, emits it and returns it.
func (r *Reporter) Tick() Interval {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	snap := r.latency.TakeIntervalSnapshot()
	iv := Interval{
		Phase:    r.phase.Load().(string),
		Seq:      r.seq.Add(1),
		At:       r.now(),
		Service:  snap.Service,
		Response: snap.Response,
		Failed:   r.failures.DrainDelta(),
	}
	r.emitter.EmitInterval(iv)
	return iv
}

// Discard drops everything recorded since the last tick without emitting.
// Used together with a recorder reset so the next interval starts clean.
func (r *Reporter) Discard() {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	r.latency.Reset()
	r.failures.Reset()
}
