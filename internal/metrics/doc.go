// Package metrics records the latency and failure measurements of a load
// campaign.
//
// Two views are kept for every successful unit of work:
//
//   - service time, from the moment a worker starts executing the unit until
//     it completes
//   - response time, from the unit's scheduled admission until it completes
//
// The gap between them is time spent queued behind busy workers. A load
// generator that only reports service time hides that queueing, which is
// the coordinated-omission problem.
//
// # Histograms
//
// [Histogram] wraps HdrHistogram with three significant digits. Recording is
// spread across locked shards; [Histogram.TakeIntervalSnapshot] drains every
// shard, folds the drained samples into a cumulative histogram and returns
// the interval [Summary]:
//
//	rec := metrics.NewLatencyRecorder()
//	rec.Record(admittedAt, runningAt, doneAt)
//
//	// Once per second.
//	snap := rec.TakeIntervalSnapshot()
//	fmt.Println(snap.Response.P99)
//
// Min, max and mean are exact. Percentiles and standard deviation carry the
// histogram's relative error, see [RelativeError].
//
// # Failures
//
// [FailureCounter] counts failures and reports per-interval deltas.
// [FailureBreakdown] groups them by protocol and status code.
package metrics
