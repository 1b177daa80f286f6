package runner

import (
	"context"
	"sync/atomic"
	"time"
)

// Result captures the admission side of one phase.
type Result struct {
	Admitted int64
	Planned  int64
	Started  time.Time
	Duration time.Duration
	// Completion trips once every admitted unit has reported Done.
	Completion *Countdown
	// Err is the context error if admission was interrupted.
	Err error
}

// Runner is the admission loop. It decides when units enter the dispatcher
// and never executes work itself.
type Runner struct {
	opt Options
	seq atomic.Uint64
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Run admits every unit of plan, one window per second, anchored to the time
// Run starts. It returns once the last window has been issued and has
// elapsed, or when ctx ends. The returned countdown is sealed in both cases,
// so callers can wait for the units that were admitted.
func (r *Runner) Run(ctx context.Context, plan RatePlan) Result {
	start := r.opt.Now()
	sched := &Scheduler{origin: start, now: r.opt.Now, sleepUntil: r.opt.SleepUntil}
	cd := NewCountdown()
	res := Result{Planned: plan.Total(), Started: start, Completion: cd}

	admit := func(time.Time) error {
		u := Unit{
			Seq:        r.seq.Add(1),
			AdmittedAt: r.opt.Now(),
			Done:       cd.Done,
		}
		cd.Add(1)
		if err := r.opt.Submitter.Submit(u); err != nil {
			cd.Add(-1)
			return err
		}
		res.Admitted++
		if r.opt.OnAdmit != nil {
			r.opt.OnAdmit(u)
		}
		return nil
	}

	for i, rps := range plan {
		if i > 0 {
			if err := r.boundary(ctx, sched, i); err != nil {
				res.Err = err
				break
			}
		}
		if r.opt.OnWindow != nil {
			r.opt.OnWindow(i, rps)
		}
		if err := sched.RunWindow(ctx, RateSpec{RPS: rps, Pattern: r.opt.Pattern}, admit); err != nil {
			res.Err = err
			break
		}
	}
	if res.Err == nil {
		res.Err = r.boundary(ctx, sched, len(plan))
	}

	cd.Seal()
	res.Duration = r.opt.Now().Sub(start)
	return res
}

// boundary waits for the end of the window last driven by sched and reports
// window w as reached.
func (r *Runner) boundary(ctx context.Context, sched *Scheduler, w int) error {
	if err := sched.WaitEnd(ctx); err != nil {
		return err
	}
	if r.opt.OnBoundary != nil {
		r.opt.OnBoundary(w)
	}
	return nil
}
