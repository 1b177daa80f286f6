package campaign

import (
	"time"

	"github.com/lokal-id/netstress/internal/exporter"
	"github.com/lokal-id/netstress/internal/metrics"
)

// sink records unit outcomes into the campaign's measurements. Failed units
// contribute no latency sample.
type sink struct {
	latency   *metrics.LatencyRecorder
	failures  *metrics.FailureCounter
	breakdown *metrics.FailureBreakdown
	exporter  *exporter.Exporter
}

func (s *sink) RecordSuccess(admittedAt, runningAt, doneAt time.Time) {
	s.latency.Record(admittedAt, runningAt, doneAt)
	s.exporter.Succeeded(doneAt.Sub(runningAt), doneAt.Sub(admittedAt))
}

func (s *sink) RecordFailure(err error) {
	s.failures.Inc()
	s.breakdown.Record(err)
	s.exporter.Failed()
}

// reset clears everything recorded so far. The failure breakdown follows
// the counter so the final report only describes the measured phase.
func (s *sink) reset() {
	s.breakdown.Reset()
}
