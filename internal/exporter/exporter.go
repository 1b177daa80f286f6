// Package exporter exposes live campaign counters in the Prometheus text
// format so a long run can be watched from an existing dashboard.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "netstress"

// Outcome labels on netstress_units_completed_total.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeAbandoned = "abandoned"
)

// Phases reported on netstress_phase, in lifecycle order.
var Phases = []string{"idle", "warmup", "stabilizing", "stress", "draining", "done"}

// Exporter owns a private registry with the campaign metrics. A nil
// *Exporter is valid and records nothing.
type Exporter struct {
	reg *prometheus.Registry

	admitted   prometheus.Counter
	completed  *prometheus.CounterVec
	service    prometheus.Histogram
	response   prometheus.Histogram
	targetRPS  prometheus.Gauge
	phase      *prometheus.GaugeVec
	queueDepth atomic.Pointer[func() int]

	phaseMu sync.Mutex
	current string
}

// New creates an Exporter with every metric registered.
func New() *Exporter {
	e := &Exporter{reg: prometheus.NewRegistry()}

	buckets := prometheus.ExponentialBuckets(0.0005, 2, 18)
	e.admitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_admitted_total",
		Help:      "Units of work admitted by the arrival scheduler.",
	})
	e.completed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "units_completed_total",
		Help:      "Units of work finished, by outcome.",
	}, []string{"outcome"})
	e.service = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "service_time_seconds",
		Help:      "Time from execution start to completion of successful units.",
		Buckets:   buckets,
	})
	e.response = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "response_time_seconds",
		Help:      "Time from admission to completion of successful units, queueing included.",
		Buckets:   buckets,
	})
	e.targetRPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "target_rps",
		Help:      "Admission rate for the current second.",
	})
	e.phase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "phase",
		Help:      "1 for the campaign's current phase, 0 otherwise.",
	}, []string{"phase"})
	depth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Admitted units waiting for a free worker.",
	}, func() float64 {
		if fn := e.queueDepth.Load(); fn != nil {
			return float64((*fn)())
		}
		return 0
	})

	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure, OutcomeAbandoned} {
		e.completed.WithLabelValues(outcome)
	}
	for _, p := range Phases {
		e.phase.WithLabelValues(p).Set(0)
	}

	e.reg.MustRegister(
		e.admitted, e.completed, e.service, e.response, e.targetRPS, e.phase, depth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	e.SetPhase("idle")
	return e
}

// Registry returns the registry backing the exporter.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{Registry: e.reg})
}

func (e *Exporter) Admitted() {
	if e == nil {
		return
	}
	e.admitted.Inc()
}

func (e *Exporter) Succeeded(service, response time.Duration) {
	if e == nil {
		return
	}
	e.completed.WithLabelValues(OutcomeSuccess).Inc()
	e.service.Observe(service.Seconds())
	e.response.Observe(response.Seconds())
}

func (e *Exporter) Failed() {
	if e == nil {
		return
	}
	e.completed.WithLabelValues(OutcomeFailure).Inc()
}

func (e *Exporter) Abandoned(n int) {
	if e == nil || n <= 0 {
		return
	}
	e.completed.WithLabelValues(OutcomeAbandoned).Add(float64(n))
}

func (e *Exporter) SetTargetRPS(rps int) {
	if e == nil {
		return
	}
	e.targetRPS.Set(float64(rps))
}

// SetPhase marks phase as current and clears the previous one.
func (e *Exporter) SetPhase(phase string) {
	if e == nil {
		return
	}
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()
	if e.current != "" {
		e.phase.WithLabelValues(e.current).Set(0)
	}
	e.current = phase
	e.phase.WithLabelValues(phase).Set(1)
}

// TrackQueueDepth installs the source read on every scrape of
// netstress_queue_depth.
func (e *Exporter) TrackQueueDepth(fn func() int) {
	if e == nil || fn == nil {
		return
	}
	e.queueDepth.Store(&fn)
}

// Server is a running metrics endpoint.
type Server struct {
	srv *http.Server
	ln  net.Listener
	log *zap.Logger

	done chan struct{}
}

// Serve listens on addr and serves /metrics until Shutdown. Listen errors
// are returned immediately so a bad address fails setup.
func (e *Exporter) Serve(addr string, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:   ln,
		log:  log,
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr is the address the server is bound to.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
