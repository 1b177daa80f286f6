package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/lokal-id/netstress/internal/metrics"
)

// Format selects the final report rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a report format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or yaml)", s)
	}
}

// ConnectionShare is the number of calls one connection carried.
type ConnectionShare struct {
	Index  int   `json:"index" yaml:"index"`
	Calls  int64 `json:"calls" yaml:"calls"`
	Errors int64 `json:"errors" yaml:"errors"`
}

// Report is the final summary of a campaign.
type Report struct {
	RunID          string                 `json:"run_id" yaml:"run_id"`
	Target         string                 `json:"target" yaml:"target"`
	Protocol       string                 `json:"protocol" yaml:"protocol"`
	Mode           string                 `json:"mode" yaml:"mode"`
	TargetRPS      int                    `json:"target_rps" yaml:"target_rps"`
	WarmUp         time.Duration          `json:"-" yaml:"-"`
	StressDuration time.Duration          `json:"-" yaml:"-"`
	Elapsed        time.Duration          `json:"-" yaml:"-"`
	Admitted       int64                  `json:"admitted" yaml:"admitted"`
	Service        metrics.Summary        `json:"-" yaml:"-"`
	Response       metrics.Summary        `json:"-" yaml:"-"`
	Failures       int64                  `json:"failures" yaml:"failures"`
	Abandoned      int                    `json:"abandoned" yaml:"abandoned"`
	RealizedRPS    float64                `json:"realized_rps" yaml:"realized_rps"`
	Interrupted    bool                   `json:"interrupted" yaml:"interrupted"`
	FailureKinds   []metrics.StatusBucket `json:"failure_kinds,omitempty" yaml:"failure_kinds,omitempty"`
	Connections    []ConnectionShare      `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// reportDoc is the serialized shape of a Report with durations flattened
// to seconds and summaries to milliseconds.
type reportDoc struct {
	Report         `yaml:",inline"`
	WarmUpSec      float64           `json:"warm_up_seconds" yaml:"warm_up_seconds"`
	StressSec      float64           `json:"stress_seconds" yaml:"stress_seconds"`
	ElapsedSec     float64           `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	ServiceTimeMs  metrics.SummaryMs `json:"service_time" yaml:"service_time"`
	ResponseTimeMs metrics.SummaryMs `json:"response_time" yaml:"response_time"`
}

func (r *Report) doc() reportDoc {
	return reportDoc{
		Report:         *r,
		WarmUpSec:      r.WarmUp.Seconds(),
		StressSec:      r.StressDuration.Seconds(),
		ElapsedSec:     r.Elapsed.Seconds(),
		ServiceTimeMs:  r.Service.InMillis(),
		ResponseTimeMs: r.Response.InMillis(),
	}
}

// Write renders r in the requested format.
func Write(w io.Writer, format Format, r *Report) error {
	switch format {
	case FormatJSON:
		return PrintJSONReport(w, r)
	case FormatYAML:
		return PrintYAMLReport(w, r)
	default:
		PrintReport(w, r)
		return nil
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r *Report) {
	heading := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgYellow)

	heading.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	fmt.Fprintf(w, "Target:            %s (%s)\n", r.Target, r.Protocol)
	fmt.Fprintf(w, "Mode:              %s @ %d rps\n", r.Mode, r.TargetRPS)
	if r.WarmUp > 0 {
		fmt.Fprintf(w, "Warm-up:           %s\n", r.WarmUp)
	}
	fmt.Fprintf(w, "Stress duration:   %s\n", r.StressDuration)
	fmt.Fprintf(w, "Elapsed:           %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Admitted:          %d\n", r.Admitted)
	fmt.Fprintf(w, "Failed:            %d\n", r.Failures)
	if r.Abandoned > 0 {
		warn.Fprintf(w, "Abandoned:         %d\n", r.Abandoned)
	}
	if r.Interrupted {
		warn.Fprintln(w, "Interrupted:       yes")
	}

	heading.Fprintln(w, "\nLatency:")
	fmt.Fprintln(w, FormatLine("(overall service time in ms)", r.Service, r.Failures))
	fmt.Fprintln(w, FormatLine("(overall response time in ms)", r.Response, r.Failures))
	fmt.Fprintf(w, "approximate rps: %.2f\n", r.RealizedRPS)

	if len(r.FailureKinds) > 0 {
		heading.Fprintln(w, "\nFailures:")
		for _, row := range r.FailureKinds {
			fmt.Fprintf(w, "  %s %s: %d\n", strings.ToUpper(row.Protocol), row.Code, row.Count)
		}
	}

	if len(r.Connections) > 1 {
		heading.Fprintln(w, "\nConnections:")
		var total int64
		for _, c := range r.Connections {
			total += c.Calls
		}
		for _, c := range r.Connections {
			share := 0.0
			if total > 0 {
				share = float64(c.Calls) / float64(total) * 100
			}
			fmt.Fprintf(w, "  #%d: calls=%d (%.1f%%), errors=%d\n", c.Index, c.Calls, share, c.Errors)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.doc())
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.doc()); err != nil {
		return err
	}
	return enc.Close()
}
