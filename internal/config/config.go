package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Protocol selects the transport a campaign drives.
type Protocol string

const (
	ProtocolHTTP    Protocol = "http"
	ProtocolGRPC    Protocol = "grpc"
	ProtocolBedrock Protocol = "bedrock"
)

// Config is the fully resolved campaign configuration.
type Config struct {
	RPS            int           `mapstructure:"rps"`
	Mode           string        `mapstructure:"mode"`
	Target         string        `mapstructure:"target"`
	Protocol       Protocol      `mapstructure:"protocol"`
	Connections    int           `mapstructure:"connections"`
	ThreadPoolSize int           `mapstructure:"thread_pool_size"`
	WarmUpDuration int           `mapstructure:"warm_up_duration"`
	StressDuration int           `mapstructure:"stress_duration"`
	Timeout        time.Duration `mapstructure:"timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	GracePeriod    time.Duration `mapstructure:"grace_period"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
	ReportFormat   string        `mapstructure:"report_format"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	LogFailures    bool          `mapstructure:"log_failures"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	HTTP           HTTPConfig    `mapstructure:"http"`
	GRPC           GRPCConfig    `mapstructure:"grpc"`
	Bedrock        BedrockConfig `mapstructure:"bedrock"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	ConfigFile     string        `mapstructure:"-"`
}

// HTTPConfig holds the request template for the HTTP transport.
type HTTPConfig struct {
	Method   string            `mapstructure:"method"`
	Headers  map[string]string `mapstructure:"headers"`
	Body     string            `mapstructure:"body"`
	BodyFile string            `mapstructure:"body_file"`
}

// GRPCConfig holds the unary call template for the gRPC transport.
type GRPCConfig struct {
	Method    string            `mapstructure:"method"`
	ProtoFile string            `mapstructure:"proto_file"`
	Message   string            `mapstructure:"message"`
	Metadata  map[string]string `mapstructure:"metadata"`
	TLS       bool              `mapstructure:"tls"`
	Insecure  bool              `mapstructure:"insecure"`
	WaitReady bool              `mapstructure:"wait_ready"`
}

// BedrockConfig holds the Converse call template for the Bedrock transport.
type BedrockConfig struct {
	Region      string  `mapstructure:"region"`
	Model       string  `mapstructure:"model"`
	Prompt      string  `mapstructure:"prompt"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether trace context is injected into outgoing
// calls. It follows Enabled unless Propagate is set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Workers returns the dispatcher pool size, defaulting to the target rate.
func (c Config) Workers() int {
	if c.ThreadPoolSize > 0 {
		return c.ThreadPoolSize
	}
	return c.RPS
}

// HasWarmUp reports whether a warm-up phase precedes the stress phase.
func (c Config) HasWarmUp() bool {
	return c.WarmUpDuration > 0
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if strings.TrimSpace(c.Target) == "" && c.Protocol != ProtocolBedrock {
		issues = append(issues, "target is required (use --help for usage information)")
	}
	if c.RPS < 1 {
		issues = append(issues, "rps must be >= 1")
	}
	if c.StressDuration < 1 {
		issues = append(issues, "stress-duration must be >= 1")
	}
	if c.WarmUpDuration < 0 {
		issues = append(issues, "warm-up-duration must be >= 0")
	}
	if c.Connections < 1 {
		issues = append(issues, "connections must be >= 1")
	}
	if c.ThreadPoolSize < 0 {
		issues = append(issues, "thread-pool-size must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.SettleDelay < 0 {
		issues = append(issues, "settle-delay must be >= 0")
	}
	if c.GracePeriod < 0 {
		issues = append(issues, "grace-period must be >= 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain-timeout must be >= 0")
	}

	switch strings.ToLower(c.Mode) {
	case "", "brutal", "burst", "uniform", "paced":
	default:
		issues = append(issues, fmt.Sprintf("mode %q is not supported (brutal or uniform)", c.Mode))
	}
	switch strings.ToLower(c.ReportFormat) {
	case "", "text", "json", "yaml":
	default:
		issues = append(issues, fmt.Sprintf("report-format %q is not supported (text, json or yaml)", c.ReportFormat))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log-format %q is not supported (console or json)", c.LogFormat))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be between 0.0 and 1.0")
	}

	issues = append(issues, validateProtocolConfig(c)...)

	if c.RPS > 10000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate configured (%d RPS). Ensure you have authorization to test the target system.", c.RPS))
	}
	if c.Workers() > 5000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: Large worker pool configured (%d workers).", c.Workers()))
	}
	if c.Protocol == ProtocolGRPC && c.GRPC.Insecure {
		warnings = append(warnings, "WARNING: gRPC TLS verification is DISABLED (insecure: true). This should ONLY be used in development/testing environments.")
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateProtocolConfig(c Config) []string {
	var issues []string
	switch c.Protocol {
	case ProtocolHTTP, "":
		if strings.TrimSpace(c.HTTP.Body) != "" && strings.TrimSpace(c.HTTP.BodyFile) != "" {
			issues = append(issues, "http: body and body-file are mutually exclusive")
		}
	case ProtocolGRPC:
		if c.GRPC.ProtoFile != "" && strings.TrimSpace(c.GRPC.Method) == "" {
			issues = append(issues, "grpc: method is required when a proto file is given")
		}
		if c.GRPC.ProtoFile == "" && strings.TrimSpace(c.GRPC.Message) != "" && strings.TrimSpace(c.GRPC.Message) != "{}" {
			issues = append(issues, "grpc: message requires a proto file describing the request type")
		}
	case ProtocolBedrock:
		if strings.TrimSpace(c.Bedrock.Model) == "" {
			issues = append(issues, "bedrock: model is required")
		}
		if strings.TrimSpace(c.Bedrock.Prompt) == "" {
			issues = append(issues, "bedrock: prompt is required")
		}
		if c.Bedrock.MaxTokens < 0 {
			issues = append(issues, "bedrock: max-tokens must be >= 0")
		}
	default:
		issues = append(issues, fmt.Sprintf("protocol %q is not supported (http, grpc or bedrock)", c.Protocol))
	}
	return issues
}
