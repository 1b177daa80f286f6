// Package runner admits and executes units of work at a controlled rate.
//
// Admission and execution are kept apart. The [Runner] decides when a unit enters the system and hands it to a
// [Dispatcher], whose workers execute it. Because admission never waits for
// a worker, a slow target causes queueing that shows up in response times
// instead of silently lowering the offered load.
//
// # Arrival patterns
//
// A [Scheduler] drives one-second windows anchored to a fixed origin:
//   - [Burst]: all N units of a window are due at the window boundary
//   - [Paced]: unit k of N is due k/N seconds into the window
//
// # Phases
//
// A [RatePlan] lists the rate of each second of a phase. [RampPlan] builds
// the linear warm-up ramp and [ConstantPlan] the fixed-rate stress phase:
//
//	d := runner.NewDispatcher(runner.DispatcherOptions{
//		Workers:   100,
//		Requester: req,
//		Sink:      sink,
//	})
//	r := runner.New(runner.Options{Pattern: runner.Paced, Submitter: d})
//	res := r.Run(ctx, runner.ConstantPlan(30, 100))
//	_ = res.Completion.Wait(ctx)
//	d.Shutdown(5 * time.Second)
//
// # Middleware
//
// [WithLogging] logs failures, typically through a [ThrottledLogger], and
// [WithTimeout] bounds each unit with a deadline.
package runner
