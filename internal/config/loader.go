package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, e.g.
// NETSTRESS_RPS or NETSTRESS_GRPC_METHOD.
const EnvPrefix = "NETSTRESS"

// Loader handles loading configuration from files, environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config populated with every default value.
func Defaults() Config {
	return Config{
		Mode:        "brutal",
		Protocol:    ProtocolHTTP,
		Connections: 1,
		Timeout:     30 * time.Second,
		SettleDelay: time.Second,
		GracePeriod: 5 * time.Second,

		ReportFormat: "text",
		LogLevel:     "info",
		LogFormat:    "console",
		HTTP: HTTPConfig{
			Method:  http.MethodGet,
			Headers: map[string]string{},
		},
		GRPC:    GRPCConfig{Metadata: map[string]string{}},
		Bedrock: BedrockConfig{MaxTokens: 256},
		Tracing: TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments, the optional configuration file and
// NETSTRESS_* environment variables to produce a Config. Precedence is
// flags, then environment, then file, then defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	cfgViper.SetEnvPrefix(EnvPrefix)
	cfgViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cfgViper.AutomaticEnv()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, viperLookup(cfgViper)); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Target = strings.TrimSpace(cfg.Target)
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(string(cfg.Protocol))))
	cfg.HTTP.Method = strings.ToUpper(cfg.HTTP.Method)
	cfg.HTTP.BodyFile = strings.TrimSpace(cfg.HTTP.BodyFile)

	return &cfg, nil
}

// viperLookup resolves a dotted settings key against the environment and
// the config file.
func viperLookup(v *viper.Viper) func(key string) (interface{}, bool) {
	return func(key string) (interface{}, bool) {
		if !v.IsSet(key) {
			return nil, false
		}
		return v.Get(key), true
	}
}

// setting binds one configuration key, and optionally a flag, to a field.
type setting struct {
	key   string
	flag  string
	apply func(cfg *Config, raw interface{}) error
}

var settings = []setting{
	{"rps", "rps", intField(func(c *Config) *int { return &c.RPS })},
	{"mode", "mode", stringField(func(c *Config) *string { return &c.Mode })},
	{"target", "target", stringField(func(c *Config) *string { return &c.Target })},
	{"protocol", "protocol", func(c *Config, raw interface{}) error {
		val, err := asString(raw)
		c.Protocol = Protocol(val)
		return err
	}},
	{"connections", "connections", intField(func(c *Config) *int { return &c.Connections })},
	{"thread_pool_size", "thread-pool-size", intField(func(c *Config) *int { return &c.ThreadPoolSize })},
	{"warm_up_duration", "warm-up-duration", intField(func(c *Config) *int { return &c.WarmUpDuration })},
	{"stress_duration", "stress-duration", intField(func(c *Config) *int { return &c.StressDuration })},
	{"timeout", "timeout", durationField(func(c *Config) *time.Duration { return &c.Timeout })},
	{"settle_delay", "settle-delay", durationField(func(c *Config) *time.Duration { return &c.SettleDelay })},
	{"grace_period", "grace-period", durationField(func(c *Config) *time.Duration { return &c.GracePeriod })},
	{"drain_timeout", "drain-timeout", durationField(func(c *Config) *time.Duration { return &c.DrainTimeout })},
	{"report_format", "report-format", stringField(func(c *Config) *string { return &c.ReportFormat })},
	{"log_level", "log-level", stringField(func(c *Config) *string { return &c.LogLevel })},
	{"log_format", "log-format", stringField(func(c *Config) *string { return &c.LogFormat })},
	{"log_failures", "log-failures", boolField(func(c *Config) *bool { return &c.LogFailures })},
	{"metrics_addr", "metrics-addr", stringField(func(c *Config) *string { return &c.MetricsAddr })},

	{"http.method", "method", stringField(func(c *Config) *string { return &c.HTTP.Method })},
	{"http.headers", "header", func(c *Config, raw interface{}) error {
		return mergeHeaders(c.HTTP.Headers, raw)
	}},
	{"http.body", "body", func(c *Config, raw interface{}) error {
		val, err := asString(raw)
		if err != nil {
			return err
		}
		c.HTTP.Body, c.HTTP.BodyFile = val, ""
		return nil
	}},
	{"http.body_file", "body-file", func(c *Config, raw interface{}) error {
		val, err := asString(raw)
		if err != nil {
			return err
		}
		c.HTTP.BodyFile, c.HTTP.Body = val, ""
		return nil
	}},

	{"grpc.method", "grpc-method", stringField(func(c *Config) *string { return &c.GRPC.Method })},
	{"grpc.proto_file", "grpc-proto-file", stringField(func(c *Config) *string { return &c.GRPC.ProtoFile })},
	{"grpc.message", "grpc-message", stringField(func(c *Config) *string { return &c.GRPC.Message })},
	{"grpc.metadata", "grpc-metadata", func(c *Config, raw interface{}) error {
		md, err := asPairMap(raw)
		if err != nil {
			return err
		}
		for k, v := range md {
			c.GRPC.Metadata[strings.ToLower(strings.TrimSpace(k))] = v
		}
		return nil
	}},
	{"grpc.tls", "grpc-tls", boolField(func(c *Config) *bool { return &c.GRPC.TLS })},
	{"grpc.insecure", "grpc-insecure", boolField(func(c *Config) *bool { return &c.GRPC.Insecure })},
	{"grpc.wait_ready", "grpc-wait-ready", boolField(func(c *Config) *bool { return &c.GRPC.WaitReady })},

	{"bedrock.region", "bedrock-region", stringField(func(c *Config) *string { return &c.Bedrock.Region })},
	{"bedrock.model", "bedrock-model", stringField(func(c *Config) *string { return &c.Bedrock.Model })},
	{"bedrock.prompt", "bedrock-prompt", stringField(func(c *Config) *string { return &c.Bedrock.Prompt })},
	{"bedrock.max_tokens", "bedrock-max-tokens", intField(func(c *Config) *int { return &c.Bedrock.MaxTokens })},
	{"bedrock.temperature", "bedrock-temperature", floatField(func(c *Config) *float64 { return &c.Bedrock.Temperature })},

	{"tracing.endpoint", "tracing-endpoint", stringField(func(c *Config) *string { return &c.Tracing.Endpoint })},
	{"tracing.protocol", "tracing-protocol", stringField(func(c *Config) *string { return &c.Tracing.Protocol })},
	{"tracing.service_name", "tracing-service-name", stringField(func(c *Config) *string { return &c.Tracing.ServiceName })},
	{"tracing.insecure", "tracing-insecure", boolField(func(c *Config) *bool { return &c.Tracing.Insecure })},
	{"tracing.sample_rate", "tracing-sample-rate", floatField(func(c *Config) *float64 { return &c.Tracing.SampleRate })},
	{"tracing.propagate", "tracing-propagate", func(c *Config, raw interface{}) error {
		val, err := asBool(raw)
		if err != nil {
			return err
		}
		c.Tracing.Propagate = &val
		return nil
	}},
}

// applyConfigSettings applies every key the lookup resolves to the Config.
func applyConfigSettings(cfg *Config, lookup func(key string) (interface{}, bool)) error {
	for _, s := range settings {
		raw, ok := lookup(s.key)
		if !ok {
			continue
		}
		if err := s.apply(cfg, raw); err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
	}
	return nil
}

func mergeHeaders(dst map[string]string, raw interface{}) error {
	hdrs, err := asPairMap(raw)
	if err != nil {
		return err
	}
	for k, val := range hdrs {
		key := http.CanonicalHeaderKey(strings.TrimSpace(k))
		if key == "" {
			return fmt.Errorf("header key cannot be empty")
		}
		dst[key] = val
	}
	return nil
}

func intField(field func(*Config) *int) func(*Config, interface{}) error {
	return func(c *Config, raw interface{}) error {
		val, err := asInt(raw)
		if err != nil {
			return err
		}
		*field(c) = val
		return nil
	}
}

func stringField(field func(*Config) *string) func(*Config, interface{}) error {
	return func(c *Config, raw interface{}) error {
		val, err := asString(raw)
		if err != nil {
			return err
		}
		*field(c) = val
		return nil
	}
}

func boolField(field func(*Config) *bool) func(*Config, interface{}) error {
	return func(c *Config, raw interface{}) error {
		val, err := asBool(raw)
		if err != nil {
			return err
		}
		*field(c) = val
		return nil
	}
}

func floatField(field func(*Config) *float64) func(*Config, interface{}) error {
	return func(c *Config, raw interface{}) error {
		val, err := asFloat64(raw)
		if err != nil {
			return err
		}
		*field(c) = val
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) func(*Config, interface{}) error {
	return func(c *Config, raw interface{}) error {
		val, err := asDuration(raw)
		if err != nil {
			return err
		}
		*field(c) = val
		return nil
	}
}
