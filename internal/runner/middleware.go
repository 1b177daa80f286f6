package runner

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Status reports the protocol and code for failure breakdowns.
func (e *HTTPError) Status() (protocol, code string) {
	return "http", strconv.Itoa(e.StatusCode)
}

// FailureLogger logs failed units.
type FailureLogger interface {
	LogFailure(err error)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && l.logger != nil {
		l.logger.LogFailure(err)
	}
	return err
}

// timeoutRequester bounds every unit with a deadline.
type timeoutRequester struct {
	inner   Requester
	timeout time.Duration
}

// WithTimeout wraps a Requester so each unit fails once timeout elapses.
func WithTimeout(req Requester, timeout time.Duration) Requester {
	if timeout <= 0 {
		return req
	}
	return &timeoutRequester{inner: req, timeout: timeout}
}

func (t *timeoutRequester) Do(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Do(ctx)
}

// ThrottledLogger logs failures at debug level, at most a fixed number per
// second. Lines over the limit are counted and reported with the next line
// that gets through.
type ThrottledLogger struct {
	log        *zap.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
	total      atomic.Int64
}

// NewThrottledLogger allows perSecond lines per second with the given burst.
// A perSecond of zero or less disables throttling.
func NewThrottledLogger(log *zap.Logger, perSecond float64, burst int) *ThrottledLogger {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &ThrottledLogger{log: log, limiter: rate.NewLimiter(limit, burst)}
}

func (l *ThrottledLogger) LogFailure(err error) {
	l.total.Add(1)
	if !l.limiter.Allow() {
		l.suppressed.Add(1)
		return
	}
	fields := []zap.Field{zap.Error(err)}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Int64("suppressed", n))
	}
	l.log.Warn("unit failed", fields...)
}

// Suppressed returns the number of lines dropped since the last logged one.
func (l *ThrottledLogger) Suppressed() int64 { return l.suppressed.Load() }

// Total returns every failure seen, logged or not.
func (l *ThrottledLogger) Total() int64 { return l.total.Load() }
