package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrDispatcherClosed is returned by Submit after Shutdown has begun.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Unit is one admitted unit of work.
type Unit struct {
	Seq        uint64
	AdmittedAt time.Time
	// Done is called after the unit's outcome has been recorded. It is not
	// called for abandoned units.
	Done func()
}

// UnitInfo describes the unit a Requester is executing.
type UnitInfo struct {
	Seq        uint64
	AdmittedAt time.Time
	RunningAt  time.Time
}

type unitKey struct{}

// ContextWithUnit attaches unit timing to ctx.
func ContextWithUnit(ctx context.Context, info UnitInfo) context.Context {
	return context.WithValue(ctx, unitKey{}, info)
}

// UnitFromContext returns the unit being executed, if any.
func UnitFromContext(ctx context.Context) (UnitInfo, bool) {
	info, ok := ctx.Value(unitKey{}).(UnitInfo)
	return info, ok
}

// Sink receives unit outcomes. Implementations must be safe for concurrent use.
type Sink interface {
	RecordSuccess(admittedAt, runningAt, doneAt time.Time)
	RecordFailure(err error)
}

// PanicError wraps a panic raised by a Requester.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("requester panicked: %v", e.Value)
}

// Dispatcher runs submitted units on a fixed set of workers. Its queue is
// unbounded: Submit never waits for a free worker, so overload shows up as
// queueing delay in response times.
type Dispatcher struct {
	opt DispatcherOptions

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []Unit
	running   int
	closed    bool
	abandoned bool
	// recording tracks units past the abandon check whose outcome is still
	// being written to the sink. Shutdown waits for them.
	recording sync.WaitGroup

	workCtx    context.Context
	cancelWork context.CancelFunc
	group      errgroup.Group
	exited     chan struct{}
	stopOnce   sync.Once
	executed   atomic.Int64
}

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	Workers   int
	Requester Requester
	Sink      Sink
	// Now is the clock used for runningAt and doneAt. Defaults to time.Now.
	Now func() time.Time
}

// NewDispatcher starts opt.Workers workers and returns the dispatcher.
func NewDispatcher(opt DispatcherOptions) *Dispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	d := &Dispatcher{opt: opt, exited: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	d.workCtx, d.cancelWork = context.WithCancel(context.Background())

	for i := 0; i < opt.Workers; i++ {
		d.group.Go(d.work)
	}
	go func() {
		_ = d.group.Wait()
		close(d.exited)
	}()
	return d
}

// Submit enqueues u without blocking on worker availability.
func (d *Dispatcher) Submit(u Unit) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.queue = append(d.queue, u)
	d.mu.Unlock()
	d.cond.Signal()
	return nil
}

// QueueDepth returns the number of units waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// InFlight returns the number of units currently executing.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Executed returns the number of units whose outcome reached the sink.
func (d *Dispatcher) Executed() int64 { return d.executed.Load() }

func (d *Dispatcher) next() (Unit, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.queue) == 0 {
		return Unit{}, false
	}
	u := d.queue[0]
	d.queue[0] = Unit{}
	d.queue = d.queue[1:]
	d.running++
	return u, true
}

func (d *Dispatcher) work() error {
	for {
		u, ok := d.next()
		if !ok {
			return nil
		}
		d.execute(u)
	}
}

func (d *Dispatcher) execute(u Unit) {
	runningAt := d.opt.Now()
	if runningAt.Before(u.AdmittedAt) {
		runningAt = u.AdmittedAt
	}
	ctx := ContextWithUnit(d.workCtx, UnitInfo{Seq: u.Seq, AdmittedAt: u.AdmittedAt, RunningAt: runningAt})

	err := d.invoke(ctx)

	doneAt := d.opt.Now()
	if doneAt.Before(runningAt) {
		doneAt = runningAt
	}

	d.mu.Lock()
	if d.abandoned {
		d.mu.Unlock()
		return
	}
	d.running--
	d.recording.Add(1)
	d.mu.Unlock()
	defer d.recording.Done()

	if d.opt.Sink != nil {
		if err != nil {
			d.opt.Sink.RecordFailure(err)
		} else {
			d.opt.Sink.RecordSuccess(u.AdmittedAt, runningAt, doneAt)
		}
	}
	d.executed.Add(1)
	if u.Done != nil {
		u.Done()
	}
}

func (d *Dispatcher) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	if d.opt.Requester == nil {
		return nil
	}
	return d.opt.Requester.Do(ctx)
}

// Shutdown stops accepting new units and lets workers finish the queue. If
// they have not finished within grace, queued and running units are
// abandoned: their outcomes are never recorded, in-flight requests see
// their context canceled, and the number abandoned is returned. Units that
// finished before the grace expired are recorded before Shutdown returns. A grace of
// zero or less waits for the queue to drain.
func (d *Dispatcher) Shutdown(grace time.Duration) int {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()

	if grace <= 0 {
		<-d.exited
		d.stop()
		return 0
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-d.exited:
		d.stop()
		return 0
	case <-timer.C:
	}

	d.mu.Lock()
	if d.abandoned {
		d.mu.Unlock()
		return 0
	}
	d.abandoned = true
	count := len(d.queue) + d.running
	d.queue = nil
	d.running = 0
	d.mu.Unlock()
	d.stop()
	d.recording.Wait()
	return count
}

// Done is closed once every worker has exited.
func (d *Dispatcher) Done() <-chan struct{} { return d.exited }

func (d *Dispatcher) stop() {
	d.stopOnce.Do(d.cancelWork)
}
