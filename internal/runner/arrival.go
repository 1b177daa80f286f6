package runner

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Pattern selects how admissions are spread across a one-second window.
type Pattern int

const (
	// Burst admits every unit of a window at the window boundary.
	Burst Pattern = iota
	// Paced admits unit k of N at offset k/N seconds into the window.
	Paced
)

func (p Pattern) String() string {
	switch p {
	case Burst:
		return "brutal"
	case Paced:
		return "uniform"
	default:
		return fmt.Sprintf("Pattern(%d)", int(p))
	}
}

// ParsePattern maps a mode name to a Pattern. "brutal" and "burst" select
// Burst; "uniform" and "paced" select Paced.
func ParsePattern(mode string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "brutal", "burst":
		return Burst, nil
	case "uniform", "paced":
		return Paced, nil
	default:
		return Burst, fmt.Errorf("unknown arrival mode %q (want brutal or uniform)", mode)
	}
}

// RateSpec is the target rate and arrival pattern for one window.
type RateSpec struct {
	RPS     int
	Pattern Pattern
}

func NewRateSpec(rps int, pattern Pattern) (RateSpec, error) {
	if rps <= 0 {
		return RateSpec{}, fmt.Errorf("rps must be positive, got %d", rps)
	}
	if pattern != Burst && pattern != Paced {
		return RateSpec{}, fmt.Errorf("invalid pattern %v", pattern)
	}
	return RateSpec{RPS: rps, Pattern: pattern}, nil
}

// offset returns how far into its window admission k is due.
func (s RateSpec) offset(k int) time.Duration {
	if s.Pattern == Burst || s.RPS <= 0 {
		return 0
	}
	return time.Duration(int64(k) * int64(time.Second) / int64(s.RPS))
}

// Scheduler hands out admission times anchored to a fixed origin. Window w
// starts at origin + w seconds no matter how long earlier windows took to
// issue, so rounding and wake-up latency never accumulate.
type Scheduler struct {
	origin time.Time
	window int64

	now        func() time.Time
	sleepUntil func(ctx context.Context, t time.Time) error
}

// NewScheduler creates a Scheduler whose first window starts at origin.
func NewScheduler(origin time.Time) *Scheduler {
	return &Scheduler{origin: origin, now: time.Now, sleepUntil: sleepUntil}
}

// Window is the index of the next window RunWindow will drive.
func (s *Scheduler) Window() int64 { return s.window }

// Due returns the target admission time of admission k in window w.
func (s *Scheduler) Due(spec RateSpec, w int64, k int) time.Time {
	return s.origin.Add(time.Duration(w) * time.Second).Add(spec.offset(k))
}

// RunWindow admits spec.RPS units for the next window. For every admission
// it waits until the unit is due and then calls admit with the target time.
// The wait returns early with the context error on cancellation; admit
// errors stop the window and are returned as is.
func (s *Scheduler) RunWindow(ctx context.Context, spec RateSpec, admit func(due time.Time) error) error {
	w := s.window
	s.window++
	for k := 0; k < spec.RPS; k++ {
		due := s.Due(spec, w, k)
		if err := s.sleepUntil(ctx, due); err != nil {
			return err
		}
		if err := admit(due); err != nil {
			return err
		}
	}
	return nil
}

// WaitEnd blocks until the window last driven by RunWindow has elapsed.
func (s *Scheduler) WaitEnd(ctx context.Context) error {
	return s.sleepUntil(ctx, s.origin.Add(time.Duration(s.window)*time.Second))
}

func sleepUntil(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
