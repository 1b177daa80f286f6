// Package bedrock drives Amazon Bedrock's Converse API as a unit of work.
// Every unit sends the same single-turn prompt; the model's answer is
// discarded apart from its size and token usage.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/lokal-id/netstress/internal/clientmetrics"
	"github.com/lokal-id/netstress/internal/pool"
)

// ConverseAPI is the part of *bedrockruntime.Client a Requester calls.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Config describes the Converse call made for every unit.
type Config struct {
	Region      string
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	Connections int

	// Static credentials; both empty selects the default AWS chain.
	AccessKey string
	SecretKey string
}

// Conn is one Bedrock runtime client with its own HTTP connection pool.
type Conn struct {
	api     ConverseAPI
	metrics *clientmetrics.ClientMetrics
}

// NewConn wraps an API client, typically a fake in tests.
func NewConn(api ConverseAPI) *Conn {
	return &Conn{api: api, metrics: clientmetrics.New()}
}

func (c *Conn) Connect(context.Context) error {
	c.metrics.MarkConnected()
	return nil
}

func (c *Conn) Close() error { return nil }

// Usage is the token count reported by the model across all calls.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Requester issues one Converse call per unit of work.
type Requester struct {
	rr    *pool.RoundRobin[*Conn]
	input bedrockruntime.ConverseInput

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// Open loads AWS configuration and builds cfg.Connections runtime clients.
func Open(ctx context.Context, cfg Config) (*Requester, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	n := cfg.Connections
	if n <= 0 {
		n = 1
	}
	conns, err := pool.Dial(ctx, n, func(int) (*Conn, error) {
		return NewConn(bedrockruntime.NewFromConfig(awsCfg)), nil
	})
	if err != nil {
		return nil, err
	}
	return NewRequester(cfg, conns)
}

// NewRequester builds a Requester over already connected clients.
func NewRequester(cfg Config, conns []*Conn) (*Requester, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("bedrock: model is required")
	}
	rr, err := pool.NewRoundRobin(conns)
	if err != nil {
		return nil, err
	}

	inference := &types.InferenceConfiguration{}
	if cfg.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(cfg.MaxTokens))
	}
	if cfg.Temperature > 0 {
		inference.Temperature = aws.Float32(float32(cfg.Temperature))
	}

	return &Requester{
		rr: rr,
		input: bedrockruntime.ConverseInput{
			ModelId: aws.String(cfg.Model),
			Messages: []types.Message{{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: cfg.Prompt}},
			}},
			InferenceConfig: inference,
		},
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		return aws.Config{}, errors.New("bedrock: no region configured (set --bedrock-region or AWS_REGION)")
	}
	return awsCfg, nil
}

// Do implements runner.Requester.
func (r *Requester) Do(ctx context.Context) error {
	conn := r.rr.Next()
	in := r.input
	conn.metrics.IncrementSent(int64(len(promptText(&in))))

	out, err := conn.api.Converse(ctx, &in)
	if err != nil {
		conn.metrics.IncrementErrors()
		return wrapError(err)
	}

	if out.Usage != nil {
		r.inputTokens.Add(int64(aws.ToInt32(out.Usage.InputTokens)))
		r.outputTokens.Add(int64(aws.ToInt32(out.Usage.OutputTokens)))
	}
	conn.metrics.IncrementReceived(int64(len(responseText(out))))
	return nil
}

// Usage returns the accumulated token counts.
func (r *Requester) Usage() Usage {
	return Usage{InputTokens: r.inputTokens.Load(), OutputTokens: r.outputTokens.Load()}
}

// ConnectionMetrics returns one snapshot per client in index order.
func (r *Requester) ConnectionMetrics() []clientmetrics.Snapshot {
	items := r.rr.Items()
	out := make([]clientmetrics.Snapshot, len(items))
	for i, c := range items {
		out[i] = c.metrics.Snapshot()
	}
	return out
}

func (r *Requester) Close() error {
	return pool.CloseAll(r.rr.Items())
}

func promptText(in *bedrockruntime.ConverseInput) string {
	var b strings.Builder
	for _, m := range in.Messages {
		for _, block := range m.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				b.WriteString(text.Value)
			}
		}
	}
	return b.String()
}

func responseText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(text.Value)
		}
	}
	return b.String()
}

// Error is a failed Converse call carrying the service error code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bedrock %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Status classifies the failure for the failure breakdown.
func (e *Error) Status() (string, string) {
	return "bedrock", e.Code
}

// wrapError keeps context errors unwrapped so they classify as timeouts or
// cancellations, and tags service errors with their API code.
func wrapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: apiErr.ErrorCode(), Err: err}
	}
	return err
}
