package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/lokal-id/netstress/internal/bedrock"
	"github.com/lokal-id/netstress/internal/clientmetrics"
	"github.com/lokal-id/netstress/internal/config"
	"github.com/lokal-id/netstress/internal/grpcclient"
	"github.com/lokal-id/netstress/internal/httpclient"
	"github.com/lokal-id/netstress/internal/runner"
)

// transport is the protocol-specific half of a campaign: the requester that
// performs one unit and the connections it spreads units over.
type transport struct {
	requester runner.Requester
	conns     clientmetrics.Reporter
	closer    io.Closer
	target    string
	// bedrock is set for Bedrock campaigns to report token usage.
	bedrock *bedrock.Requester
}

func (t *transport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}

func (t *transport) logSummary(log *zap.Logger) {
	if t.bedrock == nil {
		return
	}
	u := t.bedrock.Usage()
	log.Info("bedrock token usage",
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens))
}

func openTransport(ctx context.Context, cfg *config.Config, propagate bool) (*transport, error) {
	switch cfg.Protocol {
	case config.ProtocolHTTP, "":
		return openHTTP(ctx, cfg, propagate)
	case config.ProtocolGRPC:
		return openGRPC(ctx, cfg, propagate)
	case config.ProtocolBedrock:
		return openBedrock(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}
}

func openHTTP(ctx context.Context, cfg *config.Config, propagate bool) (*transport, error) {
	req, err := httpclient.Open(ctx, httpclient.Config{
		Target:      cfg.Target,
		Method:      cfg.HTTP.Method,
		Headers:     cfg.HTTP.Headers,
		Body:        cfg.HTTP.Body,
		BodyFile:    cfg.HTTP.BodyFile,
		Timeout:     cfg.Timeout,
		Connections: cfg.Connections,
		Propagate:   propagate,
	})
	if err != nil {
		return nil, err
	}
	return &transport{requester: req, conns: req, closer: req, target: cfg.Target}, nil
}

func openGRPC(ctx context.Context, cfg *config.Config, propagate bool) (*transport, error) {
	method := cfg.GRPC.Method
	if method == "" {
		method = grpcclient.DefaultMethod
	}
	method, err := grpcclient.NormalizeMethod(method)
	if err != nil {
		return nil, err
	}

	messages := grpcclient.EmptyMessages()
	if cfg.GRPC.ProtoFile != "" {
		messages, err = grpcclient.LoadMessages(cfg.GRPC.ProtoFile, method, cfg.GRPC.Message)
		if err != nil {
			return nil, err
		}
	}

	mc, err := grpcclient.Open(ctx, grpcclient.Config{
		Target:      cfg.Target,
		Method:      method,
		Metadata:    cfg.GRPC.Metadata,
		ProtoFile:   cfg.GRPC.ProtoFile,
		Message:     cfg.GRPC.Message,
		Connections: cfg.Connections,
		UseTLS:      cfg.GRPC.TLS,
		Insecure:    cfg.GRPC.Insecure,
		WaitReady:   cfg.GRPC.WaitReady,
		Propagate:   propagate,
	})
	if err != nil {
		return nil, err
	}
	caller := grpcclient.NewCaller(mc, method, messages, cfg.GRPC.Metadata, propagate)
	return &transport{requester: caller, conns: mc, closer: mc, target: cfg.Target + method}, nil
}

func openBedrock(ctx context.Context, cfg *config.Config) (*transport, error) {
	req, err := bedrock.Open(ctx, bedrock.Config{
		Region:      cfg.Bedrock.Region,
		Model:       cfg.Bedrock.Model,
		Prompt:      cfg.Bedrock.Prompt,
		MaxTokens:   cfg.Bedrock.MaxTokens,
		Temperature: cfg.Bedrock.Temperature,
		Connections: cfg.Connections,
	})
	if err != nil {
		return nil, err
	}
	target := cfg.Target
	if target == "" {
		target = "bedrock:" + cfg.Bedrock.Model
	}
	return &transport{requester: req, conns: req, closer: req, target: target, bedrock: req}, nil
}
