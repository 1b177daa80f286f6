package output

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lokal-id/netstress/internal/metrics"
)

// FormatLine renders one histogram summary in milliseconds:
//
//	(interval service time in ms) count:    10, min:    10.00, mean: ...
func FormatLine(label string, s metrics.Summary, failed int64) string {
	ms := s.InMillis()
	return fmt.Sprintf("%30s count: %5d, min: %8.2f, mean: %8.2f, p99: %8.2f, max: %8.2f, stddev: %6.2f, failed: %5d",
		label, ms.Count, ms.Min, ms.Mean, ms.P99, ms.Max, ms.StdDev, failed)
}

func summaryFields(kind, phase string, s metrics.Summary, failed int64) []zap.Field {
	ms := s.InMillis()
	return []zap.Field{
		zap.String("phase", phase),
		zap.String("kind", kind),
		zap.Int64("count", ms.Count),
		zap.Float64("min_ms", ms.Min),
		zap.Float64("mean_ms", ms.Mean),
		zap.Float64("p99_ms", ms.P99),
		zap.Float64("max_ms", ms.Max),
		zap.Float64("stddev_ms", ms.StdDev),
		zap.Int64("failed", failed),
	}
}

// LogEmitter writes interval and final summaries through zap.
type LogEmitter struct {
	log *zap.Logger
}

func NewLogEmitter(log *zap.Logger) *LogEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) EmitInterval(iv Interval) {
	e.log.Info(FormatLine("(interval service time in ms)", iv.Service, iv.Failed),
		summaryFields("service", iv.Phase, iv.Service, iv.Failed)...)
	e.log.Info(FormatLine("(interval response time in ms)", iv.Response, iv.Failed),
		summaryFields("response", iv.Phase, iv.Response, iv.Failed)...)
}

// EmitFinal logs the overall lines and realized throughput of a campaign.
func (e *LogEmitter) EmitFinal(r *Report) {
	e.log.Info(FormatLine("(overall service time in ms)", r.Service, r.Failures),
		summaryFields("service", "overall", r.Service, r.Failures)...)
	e.log.Info(FormatLine("(overall response time in ms)", r.Response, r.Failures),
		summaryFields("response", "overall", r.Response, r.Failures)...)
	e.log.Info(fmt.Sprintf("approximate rps: %.2f", r.RealizedRPS),
		zap.Float64("realized_rps", r.RealizedRPS),
		zap.Int("target_rps", r.TargetRPS),
		zap.Duration("elapsed", r.Elapsed),
		zap.Int("abandoned", r.Abandoned),
		zap.Bool("interrupted", r.Interrupted),
	)
}
