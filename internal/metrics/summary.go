package metrics

import "time"

// Summary describes the latency samples of one histogram view.
type Summary struct {
	Count  int64         `json:"count" yaml:"count"`
	Min    time.Duration `json:"-" yaml:"-"`
	Max    time.Duration `json:"-" yaml:"-"`
	Mean   time.Duration `json:"-" yaml:"-"`
	P50    time.Duration `json:"-" yaml:"-"`
	P90    time.Duration `json:"-" yaml:"-"`
	P99    time.Duration `json:"-" yaml:"-"`
	StdDev time.Duration `json:"-" yaml:"-"`
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// SummaryMs is the millisecond rendering of a Summary used by reports.
type SummaryMs struct {
	Count  int64   `json:"count" yaml:"count"`
	Min    float64 `json:"min_ms" yaml:"min_ms"`
	Mean   float64 `json:"mean_ms" yaml:"mean_ms"`
	P50    float64 `json:"p50_ms" yaml:"p50_ms"`
	P90    float64 `json:"p90_ms" yaml:"p90_ms"`
	P99    float64 `json:"p99_ms" yaml:"p99_ms"`
	Max    float64 `json:"max_ms" yaml:"max_ms"`
	StdDev float64 `json:"stddev_ms" yaml:"stddev_ms"`
}

// InMillis returns the summary with every duration expressed in milliseconds.
func (s Summary) InMillis() SummaryMs {
	return SummaryMs{
		Count:  s.Count,
		Min:    Millis(s.Min),
		Mean:   Millis(s.Mean),
		P50:    Millis(s.P50),
		P90:    Millis(s.P90),
		P99:    Millis(s.P99),
		Max:    Millis(s.Max),
		StdDev: Millis(s.StdDev),
	}
}
