package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// targetAliases are alternative names accepted for --target.
var targetAliases = []string{"url", "endpoint"}

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "netstress",
		Short:         "Open-loop load generator measuring service and response time",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Load shape
	flags.IntP("rps", "r", 0, "Target requests per second during the stress phase (required)")
	flags.StringP("mode", "m", "brutal", "Arrival pattern: 'brutal' (burst at each second) or 'uniform' (evenly paced)")
	flags.IntP("warm-up-duration", "w", 0, "Warm-up length in seconds, ramping linearly to --rps (0 disables)")
	flags.IntP("stress-duration", "s", 0, "Stress phase length in seconds (required)")
	flags.IntP("thread-pool-size", "t", 0, "Worker pool size (defaults to --rps)")

	// Target
	flags.StringP("target", "u", "", "Target URL, host:port or model endpoint")
	flags.String("url", "", "Alias for --target")
	flags.StringP("endpoint", "e", "", "Alias for --target")
	for _, alias := range targetAliases {
		_ = flags.MarkHidden(alias)
	}
	flags.String("protocol", string(ProtocolHTTP), "Transport: 'http', 'grpc' or 'bedrock'")
	flags.IntP("connections", "c", 1, "Number of parallel connections used round-robin")
	flags.Duration("timeout", 30*time.Second, "Per-unit timeout (0 disables)")

	// Phase timing
	flags.Duration("settle-delay", time.Second, "Pause between warm-up and stress phases")
	flags.Duration("grace-period", 5*time.Second, "Time to let in-flight units finish after an interrupt")
	flags.Duration("drain-timeout", 0, "Upper bound on waiting for stress units to complete (0 waits indefinitely)")

	// Output
	flags.String("report-format", "text", "Final report format: 'text', 'json' or 'yaml'")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: 'console' or 'json'")
	flags.Bool("log-failures", false, "Log individual unit failures (rate limited)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")

	// HTTP
	flags.String("method", "GET", "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")

	// gRPC
	flags.String("grpc-method", "", "Fully qualified gRPC method (default /grpc.health.v1.Health/Check)")
	flags.String("grpc-proto-file", "", "Path to .proto file describing the method")
	flags.String("grpc-message", "", "gRPC request message (JSON, requires --grpc-proto-file)")
	flags.StringToString("grpc-metadata", nil, "gRPC metadata key=value pairs")
	flags.Bool("grpc-tls", false, "Use TLS for gRPC connections")
	flags.Bool("grpc-insecure", false, "Skip TLS verification for gRPC")
	flags.Bool("grpc-wait-ready", false, "Wait for every gRPC connection to become ready before starting")

	// Bedrock
	flags.String("bedrock-region", "", "AWS region for Bedrock (defaults to the SDK chain)")
	flags.String("bedrock-model", "", "Bedrock model ID")
	flags.String("bedrock-prompt", "", "Prompt sent with every Converse call")
	flags.Int("bedrock-max-tokens", 256, "Maximum tokens generated per Converse call")
	flags.Float64("bedrock-temperature", 0, "Sampling temperature for Converse calls")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of units traced (0.0-1.0)")
	flags.Bool("tracing-propagate", false, "Inject trace context into outgoing calls (defaults to on when tracing)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	for _, alias := range targetAliases {
		if fs.Changed(alias) && !fs.Changed("target") {
			val, err := fs.GetString(alias)
			if err != nil {
				return err
			}
			if err := fs.Set("target", val); err != nil {
				return err
			}
		}
	}

	for _, s := range settings {
		if s.flag == "" || !fs.Changed(s.flag) {
			continue
		}
		raw, err := flagValue(fs, s.flag)
		if err != nil {
			return fmt.Errorf("--%s: %w", s.flag, err)
		}
		if err := s.apply(cfg, raw); err != nil {
			return fmt.Errorf("--%s: %w", s.flag, err)
		}
	}
	return nil
}

// flagValue returns a flag's typed value.
func flagValue(fs *pflag.FlagSet, name string) (interface{}, error) {
	f := fs.Lookup(name)
	if f == nil {
		return nil, fmt.Errorf("unknown flag")
	}
	switch f.Value.Type() {
	case "int":
		return fs.GetInt(name)
	case "bool":
		return fs.GetBool(name)
	case "float64":
		return fs.GetFloat64(name)
	case "duration":
		return fs.GetDuration(name)
	case "stringSlice":
		return fs.GetStringSlice(name)
	case "stringToString":
		return fs.GetStringToString(name)
	default:
		return f.Value.String(), nil
	}
}
