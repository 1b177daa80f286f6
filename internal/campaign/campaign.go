// Package campaign sequences a load test: an optional linear warm-up, a
// settle pause, a constant-rate stress phase and a drain, then produces the
// final report. Measurements taken during warm-up are discarded before the
// stress phase admits its first unit.
package campaign

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lokal-id/netstress/internal/clientmetrics"
	"github.com/lokal-id/netstress/internal/exporter"
	"github.com/lokal-id/netstress/internal/metrics"
	"github.com/lokal-id/netstress/internal/output"
	"github.com/lokal-id/netstress/internal/runner"
)

// ErrAlreadyStarted is returned by Start on a campaign that has run.
var ErrAlreadyStarted = errors.New("campaign already started")

// Config is the shape of one campaign.
type Config struct {
	RPS     int
	Pattern runner.Pattern
	// WarmUp and Stress are phase lengths in whole seconds.
	WarmUp int
	Stress int
	// Workers defaults to RPS.
	Workers int

	SettleDelay time.Duration
	// GracePeriod bounds how long queued and running units may finish once
	// the campaign is interrupted or the drain times out.
	GracePeriod time.Duration
	// DrainTimeout bounds the wait for stress units to complete. Zero waits
	// until every unit is done.
	DrainTimeout time.Duration
	// ReportInterval defaults to one second.
	ReportInterval time.Duration

	RunID    string
	Target   string
	Protocol string
}

// Options wire a campaign to its collaborators.
type Options struct {
	Config

	Requester runner.Requester
	Emitter   output.Emitter
	// Exporter may be nil.
	Exporter *exporter.Exporter
	// Connections, when set, contributes per-connection call counts to the
	// final report.
	Connections clientmetrics.Reporter
	Logger      *zap.Logger

	Now        func() time.Time
	SleepUntil func(ctx context.Context, t time.Time) error
}

// Campaign runs once. Start launches it, Stop requests an orderly shutdown
// and AwaitCompletion returns the final report.
type Campaign struct {
	opt Options
	log *zap.Logger

	latency   *metrics.LatencyRecorder
	failures  *metrics.FailureCounter
	breakdown *metrics.FailureBreakdown
	sink      *sink

	// rep is the reporter of the phase being admitted. Only the run
	// goroutine touches it.
	rep *output.Reporter

	state   atomic.Int32
	started atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc

	done   chan struct{}
	report *output.Report
}

// New validates opts and returns an idle campaign.
func New(opts Options) (*Campaign, error) {
	if opts.RPS < 1 {
		return nil, errors.New("campaign: rps must be >= 1")
	}
	if opts.Stress < 1 {
		return nil, errors.New("campaign: stress duration must be >= 1s")
	}
	if opts.WarmUp < 0 {
		return nil, errors.New("campaign: warm-up duration must be >= 0")
	}
	if opts.Requester == nil {
		return nil, errors.New("campaign: requester is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = opts.RPS
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Campaign{
		opt:       opts,
		log:       log,
		latency:   metrics.NewLatencyRecorder(),
		failures:  &metrics.FailureCounter{},
		breakdown: metrics.NewFailureBreakdown(),
		done:      make(chan struct{}),
	}
	c.sink = &sink{
		latency:   c.latency,
		failures:  c.failures,
		breakdown: c.breakdown,
		exporter:  opts.Exporter,
	}
	return c, nil
}

// State returns the current lifecycle phase.
func (c *Campaign) State() State {
	return State(c.state.Load())
}

func (c *Campaign) setState(s State) {
	c.state.Store(int32(s))
	c.opt.Exporter.SetPhase(s.String())
	c.log.Info("phase", zap.Stringer("phase", s))
}

// Start launches the campaign in the background. Cancelling ctx has the
// same effect as Stop.
func (c *Campaign) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		c.report = c.run(runCtx)
		close(c.done)
	}()
	return nil
}

// Stop interrupts admission. Units already admitted get the grace period to
// finish; the rest are abandoned and the final report is still produced.
func (c *Campaign) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// AwaitCompletion blocks until the campaign reaches Done and returns its
// report, or returns ctx's error first.
func (c *Campaign) AwaitCompletion(ctx context.Context) (*output.Report, error) {
	select {
	case <-c.done:
		return c.report, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run is Start followed by AwaitCompletion.
func (c *Campaign) Run(ctx context.Context) (*output.Report, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c.AwaitCompletion(context.Background())
}

func (c *Campaign) newReporter(phase State) *output.Reporter {
	rep := output.NewReporter(c.latency, c.failures, c.opt.Emitter, c.opt.ReportInterval)
	rep.SetPhase(phase.String())
	return rep
}

func (c *Campaign) newRunner(d *runner.Dispatcher) *runner.Runner {
	return runner.New(runner.Options{
		Pattern:   c.opt.Pattern,
		Submitter: d,
		OnAdmit: func(runner.Unit) {
			c.opt.Exporter.Admitted()
		},
		OnWindow: func(_ int, rps int) {
			c.opt.Exporter.SetTargetRPS(rps)
		},
		OnBoundary: func(int) {
			c.rep.Tick()
		},
		Now:        c.opt.Now,
		SleepUntil: c.opt.SleepUntil,
	})
}

func (c *Campaign) run(ctx context.Context) *output.Report {
	d := runner.NewDispatcher(runner.DispatcherOptions{
		Workers:   c.opt.Workers,
		Requester: c.opt.Requester,
		Sink:      c.sink,
		Now:       c.opt.Now,
	})
	c.opt.Exporter.TrackQueueDepth(d.QueueDepth)
	run := c.newRunner(d)

	var (
		res         runner.Result
		measureFrom = c.opt.Now()
		interrupted bool
	)

	if c.opt.WarmUp > 0 {
		c.setState(WarmingUp)
		c.rep = c.newReporter(WarmingUp)
		res = run.Run(ctx, runner.RampPlan(c.opt.WarmUp, c.opt.RPS))
		if res.Err == nil {
			c.rep.Start()
			res.Err = res.Completion.Wait(ctx)
			c.rep.Stop()
		}
		if res.Err != nil {
			interrupted = true
		} else {
			c.rep.Tick()
			c.setState(Stabilizing)
			c.rep.Discard()
			c.sink.reset()
			if err := sleepCtx(ctx, c.opt.SettleDelay); err != nil {
				interrupted = true
			}
		}
	}

	if !interrupted {
		c.setState(Stressing)
		c.rep = c.newReporter(Stressing)
		measureFrom = c.opt.Now()
		res = run.Run(ctx, runner.ConstantPlan(c.opt.Stress, c.opt.RPS))
		interrupted = res.Err != nil
		if !interrupted {
			c.setState(Draining)
		}
	}

	// Window boundaries drive intervals while units are admitted; the
	// reporter's own cadence covers the drain.
	c.rep.Start()
	abandoned := c.drain(ctx, d, res, interrupted)
	if ctx.Err() != nil {
		interrupted = true
	}
	c.opt.Exporter.Abandoned(abandoned)

	c.rep.Stop()
	c.rep.Tick()
	elapsed := c.opt.Now().Sub(measureFrom)

	report := c.buildReport(res, elapsed, abandoned, interrupted)
	c.setState(Done)
	return report
}

// drain waits for admitted units to finish and shuts the dispatcher down,
// returning how many units were abandoned.
func (c *Campaign) drain(ctx context.Context, d *runner.Dispatcher, res runner.Result, interrupted bool) int {
	if !interrupted && res.Completion != nil {
		waitCtx := ctx
		if c.opt.DrainTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, c.opt.DrainTimeout)
			defer cancel()
		}
		if err := res.Completion.Wait(waitCtx); err != nil && ctx.Err() == nil {
			c.log.Warn("drain timeout expired",
				zap.Duration("drain_timeout", c.opt.DrainTimeout),
				zap.Int64("pending", res.Completion.Pending()))
		}
	}

	abandoned := d.Shutdown(c.opt.GracePeriod)
	if abandoned > 0 {
		c.log.Warn("abandoned units after grace period",
			zap.Int("abandoned", abandoned),
			zap.Duration("grace_period", c.opt.GracePeriod))
	}
	return abandoned
}

func (c *Campaign) buildReport(res runner.Result, elapsed time.Duration, abandoned int, interrupted bool) *output.Report {
	cum := c.latency.Cumulative()
	r := &output.Report{
		RunID:          c.opt.RunID,
		Target:         c.opt.Target,
		Protocol:       c.opt.Protocol,
		Mode:           c.opt.Pattern.String(),
		TargetRPS:      c.opt.RPS,
		WarmUp:         time.Duration(c.opt.WarmUp) * time.Second,
		StressDuration: time.Duration(c.opt.Stress) * time.Second,
		Elapsed:        elapsed,
		Admitted:       res.Admitted,
		Service:        cum.Service,
		Response:       cum.Response,
		Failures:       c.failures.Total(),
		Abandoned:      abandoned,
		Interrupted:    interrupted,
		FailureKinds:   c.breakdown.Rows(),
	}
	if secs := elapsed.Seconds(); secs > 0 {
		r.RealizedRPS = float64(cum.Service.Count) / secs
	}
	if c.opt.Connections != nil {
		for i, s := range c.opt.Connections.ConnectionMetrics() {
			r.Connections = append(r.Connections, output.ConnectionShare{
				Index:  i,
				Calls:  s.MessagesSent,
				Errors: s.Errors,
			})
		}
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
