package grpcclient

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/lokal-id/netstress/internal/tracing"
)

// Caller performs one unary call per unit of work.
type Caller struct {
	cc        grpc.ClientConnInterface
	method    string
	messages  *Messages
	md        metadata.MD
	propagate bool
}

// NewCaller builds a Caller for method on cc. Metadata keys are lowercased.
func NewCaller(cc grpc.ClientConnInterface, method string, messages *Messages, md map[string]string, propagate bool) *Caller {
	if messages == nil {
		messages = EmptyMessages()
	}
	out := metadata.MD{}
	for k, v := range md {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		out.Set(key, v)
	}
	return &Caller{cc: cc, method: method, messages: messages, md: out, propagate: propagate}
}

// Do implements runner.Requester.
func (c *Caller) Do(ctx context.Context) error {
	md := c.md
	if c.propagate {
		md = md.Copy()
		tracing.InjectGRPCMetadata(ctx, md)
	}
	if len(md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	req, resp := c.messages.New()
	if err := c.cc.Invoke(ctx, c.method, req, resp); err != nil {
		return fmt.Errorf("grpc invoke %s: %w", c.method, err)
	}
	return nil
}
