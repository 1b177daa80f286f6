package runner

import (
	"context"
	"time"
)

// Requester abstracts executing a single unit of work.
// Implementations should return an error for failed units.
type Requester interface {
	Do(ctx context.Context) error
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context) error

func (f RequesterFunc) Do(ctx context.Context) error { return f(ctx) }

// Submitter accepts admitted units. *Dispatcher implements it.
type Submitter interface {
	Submit(u Unit) error
}

// Options configure the Runner.
type Options struct {
	Pattern   Pattern   // arrival pattern for every window
	Submitter Submitter // destination of admitted units (required)

	// OnAdmit is called after each successful submission.
	OnAdmit func(u Unit)
	// OnWindow is called before each window with its index and rate.
	OnWindow func(window int, rps int)
	// OnBoundary is called once window w-1 has fully elapsed, before any
	// unit of window w is admitted. The last call, with w equal to the plan
	// length, follows the end of the final window. Calls happen on the
	// goroutine running Run.
	OnBoundary func(w int)

	Now        func() time.Time                            // optional injection for tests
	SleepUntil func(ctx context.Context, t time.Time) error // optional injection for tests
}

func (o *Options) normalize() {
	if o.Pattern != Paced {
		o.Pattern = Burst
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SleepUntil == nil {
		o.SleepUntil = sleepUntil
	}
}
