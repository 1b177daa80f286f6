package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/lokal-id/netstress/internal/campaign"
	"github.com/lokal-id/netstress/internal/config"
	"github.com/lokal-id/netstress/internal/exporter"
	"github.com/lokal-id/netstress/internal/logging"
	"github.com/lokal-id/netstress/internal/output"
	"github.com/lokal-id/netstress/internal/runner"
	"github.com/lokal-id/netstress/internal/tracing"
)

const (
	exitOK          = 0
	exitSetup       = 1
	exitInterrupted = 130

	// failure log lines per second once --log-failures is set
	failureLogRate  = 10
	failureLogBurst = 20

	shutdownTimeout = 5 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one campaign and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSetup
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSetup
	}
	format, err := output.ParseFormat(cfg.ReportFormat)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSetup
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitSetup
	}
	defer func() { _ = log.Sync() }()

	runID := ulid.Make().String()
	log = log.With(zap.String("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := execute(ctx, cfg, runID, log)
	if err != nil {
		log.Error("setup failed", zap.Error(err))
		return exitSetup
	}

	output.NewLogEmitter(log).EmitFinal(report)
	if err := output.Write(stdout, format, report); err != nil {
		log.Error("write report", zap.Error(err))
		return exitSetup
	}
	return exitCode(report)
}

func exitCode(r *output.Report) int {
	if r.Interrupted {
		return exitInterrupted
	}
	return exitOK
}

// execute wires the transport, middleware, metrics and campaign together and
// runs the campaign to completion.
func execute(ctx context.Context, cfg *config.Config, runID string, log *zap.Logger) (*output.Report, error) {
	tp, err := tracing.Init(ctx, cfg.Tracing, attribute.String("netstress.run_id", runID))
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	tr, err := openTransport(ctx, cfg, tp.ShouldPropagate())
	if err != nil {
		return nil, fmt.Errorf("%s transport: %w", cfg.Protocol, err)
	}
	defer func() {
		if err := tr.Close(); err != nil {
			log.Warn("close transport", zap.Error(err))
		}
	}()
	log.Info("transport ready",
		zap.String("protocol", string(cfg.Protocol)),
		zap.String("target", tr.target),
		zap.Int("connections", len(tr.conns.ConnectionMetrics())))

	req := runner.WithTimeout(tr.requester, cfg.Timeout)
	var failures *runner.ThrottledLogger
	if cfg.LogFailures {
		failures = runner.NewThrottledLogger(log, failureLogRate, failureLogBurst)
		req = runner.WithLogging(req, failures)
	}
	req = tracing.WithSpans(req, tp, string(cfg.Protocol), tr.target)

	var exp *exporter.Exporter
	if cfg.MetricsAddr != "" {
		exp = exporter.New()
		srv, err := exp.Serve(cfg.MetricsAddr, log)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	pattern, err := runner.ParsePattern(cfg.Mode)
	if err != nil {
		return nil, err
	}

	c, err := campaign.New(campaign.Options{
		Config: campaign.Config{
			RPS:          cfg.RPS,
			Pattern:      pattern,
			WarmUp:       cfg.WarmUpDuration,
			Stress:       cfg.StressDuration,
			Workers:      cfg.Workers(),
			SettleDelay:  cfg.SettleDelay,
			GracePeriod:  cfg.GracePeriod,
			DrainTimeout: cfg.DrainTimeout,
			RunID:        runID,
			Target:       tr.target,
			Protocol:     string(cfg.Protocol),
		},
		Requester:   req,
		Emitter:     output.NewLogEmitter(log),
		Exporter:    exp,
		Connections: tr.conns,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	report, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	if failures != nil && failures.Suppressed() > 0 {
		log.Info("failure log lines suppressed",
			zap.Int64("suppressed", failures.Suppressed()),
			zap.Int64("failures", failures.Total()))
	}
	tr.logSummary(log)
	return report, nil
}
