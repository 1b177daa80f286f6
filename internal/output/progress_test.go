package output

import (
	"sync"
	"testing"
	"time"

	"github.com/lokal-id/netstress/internal/metrics"
)

type collectEmitter struct {
	mu        sync.Mutex
	intervals []Interval
}

func (c *collectEmitter) EmitInterval(iv Interval) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intervals = append(c.intervals, iv)
}

func (c *collectEmitter) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.intervals)
}

func TestReporterTickDrainsInterval(t *testing.T) {
	rec := metrics.NewLatencyRecorder()
	var failures metrics.FailureCounter
	em := &collectEmitter{}
	r := NewReporter(rec, &failures, em, time.Second)
	r.SetPhase("stress")

	base := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		rec.Record(base, base, base.Add(10*time.Millisecond))
	}
	failures.Inc()
	failures.Inc()

	iv := r.Tick()
	if iv.Phase != "stress" || iv.Seq != 1 {
		t.Fatalf("phase/seq = %q/%d, want stress/1", iv.Phase, iv.Seq)
	}
	if iv.Service.Count != 10 || iv.Service.Min != 10*time.Millisecond {
		t.Fatalf("service = %+v", iv.Service)
	}
	if iv.Response.Max != 10*time.Millisecond {
		t.Fatalf("response max = %s, want 10ms", iv.Response.Max)
	}
	if iv.Failed != 2 {
		t.Fatalf("Failed = %d, want 2", iv.Failed)
	}

	next := r.Tick()
	if next.Seq != 2 || next.Service.Count != 0 || next.Failed != 0 {
		t.Fatalf("second tick = %+v, want empty interval with seq 2", next)
	}
	if em.len() != 2 {
		t.Fatalf("emitted %d intervals, want 2", em.len())
	}
}

func TestReporterDiscardClearsState(t *testing.T) {
	rec := metrics.NewLatencyRecorder()
	var failures metrics.FailureCounter
	r := NewReporter(rec, &failures, nil, time.Second)

	now := time.Now()
	rec.Record(now, now, now.Add(time.Millisecond))
	failures.Inc()
	r.Tick()
	rec.Record(now, now, now.Add(time.Millisecond))

	r.Discard()

	iv := r.Tick()
	if iv.Service.Count != 0 || iv.Failed != 0 {
		t.Fatalf("tick after discard = %+v", iv)
	}
	if got := rec.Cumulative().Service.Count; got != 0 {
		t.Fatalf("cumulative count = %d, want 0", got)
	}
	if got := failures.Total(); got != 0 {
		t.Fatalf("failures = %d, want 0", got)
	}
}

func TestReporterPeriodicTicks(t *testing.T) {
	rec := metrics.NewLatencyRecorder()
	var failures metrics.FailureCounter
	em := &collectEmitter{}
	r := NewReporter(rec, &failures, em, 20*time.Millisecond)

	r.Start()
	r.Start()
	deadline := time.Now().Add(2 * time.Second)
	for em.len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d ticks before deadline", em.len())
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	r.Stop()

	after := em.len()
	time.Sleep(60 * time.Millisecond)
	if em.len() != after {
		t.Fatalf("ticks after Stop: %d -> %d", after, em.len())
	}
}

func TestMultiEmitterFansOut(t *testing.T) {
	a, b := &collectEmitter{}, &collectEmitter{}
	var calls int
	m := MultiEmitter{a, nil, b, EmitterFunc(func(Interval) { calls++ })}
	m.EmitInterval(Interval{Seq: 1})
	if a.len() != 1 || b.len() != 1 || calls != 1 {
		t.Fatalf("fan out = %d/%d/%d, want 1/1/1", a.len(), b.len(), calls)
	}
}
