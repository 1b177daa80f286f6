package metrics

import "time"

// Snapshot pairs the service-time and response-time views taken together.
type Snapshot struct {
	Service  Summary
	Response Summary
}

// LatencyRecorder holds the two histograms a campaign measures: service time
// (execution only) and response time (admission to completion).
type LatencyRecorder struct {
	service  *Histogram
	response *Histogram
}

func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{
		service:  NewHistogram(),
		response: NewHistogram(),
	}
}

// Record stores the timings of one successful unit.
func (r *LatencyRecorder) Record(admittedAt, runningAt, doneAt time.Time) {
	r.service.Record(doneAt.Sub(runningAt))
	r.response.Record(doneAt.Sub(admittedAt))
}

// TakeIntervalSnapshot drains both histograms. It is called once per
// reporting tick and once more at shutdown to flush the remainder.
func (r *LatencyRecorder) TakeIntervalSnapshot() Snapshot {
	return Snapshot{
		Service:  r.service.TakeIntervalSnapshot(),
		Response: r.response.TakeIntervalSnapshot(),
	}
}

func (r *LatencyRecorder) Cumulative() Snapshot {
	return Snapshot{
		Service:  r.service.Cumulative(),
		Response: r.response.Cumulative(),
	}
}

// Reset clears interval and cumulative state of both histograms.
func (r *LatencyRecorder) Reset() {
	r.service.Reset()
	r.response.Reset()
}
