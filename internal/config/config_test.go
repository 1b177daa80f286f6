package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lokal-id/netstress/internal/config"
)

func TestParseFlagsDefaults(t *testing.T) {
	loader := config.NewLoader()

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Target != "" {
		t.Errorf("Target = %q, want empty", cfg.Target)
	}
	if cfg.Mode != "brutal" {
		t.Errorf("Mode = %q, want brutal", cfg.Mode)
	}
	if cfg.Protocol != config.ProtocolHTTP {
		t.Errorf("Protocol = %q, want http", cfg.Protocol)
	}
	if cfg.Connections != 1 {
		t.Errorf("Connections = %d, want 1", cfg.Connections)
	}
	if cfg.WarmUpDuration != 0 {
		t.Errorf("WarmUpDuration = %d, want 0", cfg.WarmUpDuration)
	}
	if cfg.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %s, want 1s", cfg.SettleDelay)
	}
	if cfg.GracePeriod != 5*time.Second {
		t.Errorf("GracePeriod = %s, want 5s", cfg.GracePeriod)
	}
	if cfg.HTTP.Method != "GET" {
		t.Errorf("HTTP.Method = %q, want GET", cfg.HTTP.Method)
	}
	if cfg.ReportFormat != "text" {
		t.Errorf("ReportFormat = %q, want text", cfg.ReportFormat)
	}
	if len(cfg.HTTP.Headers) != 0 {
		t.Errorf("Headers len = %d, want 0", len(cfg.HTTP.Headers))
	}
}

func TestThreadPoolSizeDefaultsToRPS(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--rps=40", "--stress-duration=5", "--target=http://localhost"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ThreadPoolSize != 0 {
		t.Errorf("ThreadPoolSize = %d, want 0 when unset", cfg.ThreadPoolSize)
	}
	if cfg.Workers() != 40 {
		t.Errorf("Workers() = %d, want 40", cfg.Workers())
	}

	cfg, err = config.NewLoader().Load([]string{"-r", "40", "-t", "8", "-s", "5", "-u", "http://localhost"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers() != 8 {
		t.Errorf("Workers() = %d, want 8", cfg.Workers())
	}
}

func TestShortFlags(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{
		"-r", "100", "-m", "uniform", "-w", "4", "-s", "10", "-c", "3", "-e", "localhost:50051",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPS != 100 || cfg.Mode != "uniform" || cfg.WarmUpDuration != 4 || cfg.StressDuration != 10 || cfg.Connections != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Target != "localhost:50051" {
		t.Errorf("Target = %q, want localhost:50051 via --endpoint alias", cfg.Target)
	}
	if !cfg.HasWarmUp() {
		t.Error("HasWarmUp() = false, want true")
	}
}

func TestURLAliasDoesNotOverrideTarget(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--url=http://alias", "--target=http://primary"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Target != "http://primary" {
		t.Errorf("Target = %q, want http://primary", cfg.Target)
	}
}

func TestHelpRequested(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{
		"target": "https://api.example.com",
		"rps": 250,
		"mode": "uniform",
		"connections": 4,
		"thread_pool_size": 64,
		"warm_up_duration": 10,
		"stress_duration": 60,
		"timeout": "2s",
		"drain_timeout": "30s",
		"http": {
			"method": "put",
			"headers": {"content-type": "application/json"},
			"body": "{\"foo\":\"bar\"}"
		},
		"tracing": {"endpoint": "localhost:4317", "sample_rate": 0.25}
	}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Target != "https://api.example.com" {
		t.Errorf("Target = %q", cfg.Target)
	}
	if cfg.RPS != 250 || cfg.Connections != 4 || cfg.ThreadPoolSize != 64 {
		t.Errorf("RPS/Connections/ThreadPoolSize = %d/%d/%d", cfg.RPS, cfg.Connections, cfg.ThreadPoolSize)
	}
	if cfg.WarmUpDuration != 10 || cfg.StressDuration != 60 {
		t.Errorf("durations = %d/%d, want 10/60", cfg.WarmUpDuration, cfg.StressDuration)
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("Timeout = %s, want 2s", cfg.Timeout)
	}
	if cfg.DrainTimeout != 30*time.Second {
		t.Errorf("DrainTimeout = %s, want 30s", cfg.DrainTimeout)
	}
	if cfg.HTTP.Method != "PUT" {
		t.Errorf("HTTP.Method = %q, want PUT", cfg.HTTP.Method)
	}
	if cfg.HTTP.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers = %#v", cfg.HTTP.Headers)
	}
	if cfg.HTTP.Body != `{"foo":"bar"}` {
		t.Errorf("Body = %q", cfg.HTTP.Body)
	}
	if cfg.Tracing.SampleRate != 0.25 || !cfg.Tracing.Enabled() {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
target: localhost:50051
protocol: grpc
rps: 100
stress_duration: 30
connections: 8
grpc:
  method: /time.Time/LocalTime
  metadata:
    x-tenant: blue
  wait_ready: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Protocol != config.ProtocolGRPC {
		t.Errorf("Protocol = %q, want grpc", cfg.Protocol)
	}
	if cfg.GRPC.Method != "/time.Time/LocalTime" {
		t.Errorf("GRPC.Method = %q", cfg.GRPC.Method)
	}
	if cfg.GRPC.Metadata["x-tenant"] != "blue" {
		t.Errorf("GRPC.Metadata = %#v", cfg.GRPC.Metadata)
	}
	if !cfg.GRPC.WaitReady {
		t.Error("GRPC.WaitReady = false, want true")
	}
	if cfg.Connections != 8 {
		t.Errorf("Connections = %d, want 8", cfg.Connections)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestEnvironmentOverridesFileAndFlagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("rps: 10\nconnections: 2\nstress_duration: 5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NETSTRESS_RPS", "20")
	t.Setenv("NETSTRESS_CONNECTIONS", "6")
	t.Setenv("NETSTRESS_GRPC_METHOD", "/svc/Method")

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--connections=9"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPS != 20 {
		t.Errorf("RPS = %d, want 20 from environment", cfg.RPS)
	}
	if cfg.Connections != 9 {
		t.Errorf("Connections = %d, want 9 from flag", cfg.Connections)
	}
	if cfg.StressDuration != 5 {
		t.Errorf("StressDuration = %d, want 5 from file", cfg.StressDuration)
	}
	if cfg.GRPC.Method != "/svc/Method" {
		t.Errorf("GRPC.Method = %q, want /svc/Method from environment", cfg.GRPC.Method)
	}
}

func TestFlagBodyOverridesConfigBodyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  body_file: payload.json\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--body", "inline"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Body != "inline" {
		t.Errorf("Body = %q, want inline", cfg.HTTP.Body)
	}
	if cfg.HTTP.BodyFile != "" {
		t.Errorf("BodyFile = %q, want empty", cfg.HTTP.BodyFile)
	}
}

func TestTracingPropagate(t *testing.T) {
	cfg := config.TracingConfig{}
	if cfg.Enabled() || cfg.ShouldPropagate() {
		t.Error("empty tracing config should be disabled and not propagate")
	}
	cfg.Endpoint = "localhost:4317"
	if !cfg.ShouldPropagate() {
		t.Error("ShouldPropagate() = false, want true when enabled")
	}
	off := false
	cfg.Propagate = &off
	if cfg.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want explicit false")
	}
}

func TestConfigValidationErrors(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Defaults()
		cfg.Target = "http://localhost:8080/local"
		cfg.RPS = 10
		cfg.StressDuration = 5
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() on valid config error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing target", func(c *config.Config) { c.Target = "" }, "target is required"},
		{"zero rps", func(c *config.Config) { c.RPS = 0 }, "rps must be >= 1"},
		{"zero stress", func(c *config.Config) { c.StressDuration = 0 }, "stress-duration must be >= 1"},
		{"negative warm-up", func(c *config.Config) { c.WarmUpDuration = -1 }, "warm-up-duration"},
		{"zero connections", func(c *config.Config) { c.Connections = 0 }, "connections must be >= 1"},
		{"bad mode", func(c *config.Config) { c.Mode = "poisson" }, "mode \"poisson\""},
		{"bad report format", func(c *config.Config) { c.ReportFormat = "html" }, "report-format"},
		{"bad protocol", func(c *config.Config) { c.Protocol = "websocket" }, "protocol \"websocket\""},
		{"body and file", func(c *config.Config) {
			c.HTTP.Body = "x"
			c.HTTP.BodyFile = "y"
		}, "mutually exclusive"},
		{"grpc message without proto", func(c *config.Config) {
			c.Protocol = config.ProtocolGRPC
			c.GRPC.Message = `{"name":"x"}`
		}, "requires a proto file"},
		{"bedrock without model", func(c *config.Config) {
			c.Protocol = config.ProtocolBedrock
			c.Bedrock.Prompt = "hi"
		}, "bedrock: model is required"},
		{"sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "sample rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestBedrockDoesNotRequireTarget(t *testing.T) {
	cfg := config.Defaults()
	cfg.Protocol = config.ProtocolBedrock
	cfg.RPS = 1
	cfg.StressDuration = 1
	cfg.Bedrock.Model = "anthropic.claude-3-haiku-20240307-v1:0"
	cfg.Bedrock.Prompt = "ping"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
