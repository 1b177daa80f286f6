// Package grpcclient is the gRPC transport: several independent connections
// to one target, multiplexed round-robin behind grpc.ClientConnInterface.
package grpcclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lokal-id/netstress/internal/clientmetrics"
)

// DefaultMethod is called when no method is configured. Any server that
// registers the standard health service answers it.
const DefaultMethod = "/grpc.health.v1.Health/Check"

// DialTimeout bounds how long Open waits for every connection to be ready
// when the caller's context has no deadline.
const DialTimeout = 10 * time.Second

// Config holds configuration for the gRPC transport
type Config struct {
	Target      string
	Method      string
	Metadata    map[string]string
	ProtoFile   string
	Message     string
	Connections int
	UseTLS      bool
	Insecure    bool
	// WaitReady makes Connect block until the connection is READY.
	WaitReady bool
	// Propagate injects W3C trace context into outgoing metadata.
	Propagate bool
}

// Dial establishes a gRPC connection based on configuration
func Dial(ctx context.Context, cfg Config, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption
	if cfg.UseTLS {
		if cfg.Insecure {
			// Use TLS but skip certificate verification
			creds := credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
			opts = append(opts, grpc.WithTransportCredentials(creds))
		} else {
			// Use TLS with proper certificate verification
			creds := credentials.NewClientTLSFromCert(nil, "")
			opts = append(opts, grpc.WithTransportCredentials(creds))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, extra...)

	// grpc.NewClient is non-blocking and doesn't take a context for dialing itself
	return grpc.NewClient(cfg.Target, opts...)
}

// Conn is one independent connection with its own traffic counters.
type Conn struct {
	cfg     Config
	extra   []grpc.DialOption
	mu      sync.Mutex
	conn    *grpc.ClientConn
	metrics *clientmetrics.ClientMetrics
}

// NewConn prepares a connection; Connect opens it.
func NewConn(cfg Config, extra ...grpc.DialOption) *Conn {
	return &Conn{cfg: cfg, extra: extra, metrics: clientmetrics.New()}
}

// Connect establishes the gRPC connection
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return fmt.Errorf("client already connected")
	}

	conn, err := Dial(ctx, c.cfg, c.extra...)
	if err != nil {
		return err
	}
	if c.cfg.WaitReady {
		if err := waitReady(ctx, conn); err != nil {
			conn.Close()
			return fmt.Errorf("connect %s: %w", c.cfg.Target, err)
		}
	}
	c.conn = conn
	c.metrics.MarkConnected()
	return nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("not ready (last state %s): %w", state, ctx.Err())
		}
	}
}

// ClientConn returns the underlying connection, nil before Connect.
func (c *Conn) ClientConn() *grpc.ClientConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Metrics returns the connection's counters.
func (c *Conn) Metrics() *clientmetrics.ClientMetrics { return c.metrics }

// Close closes the gRPC connection
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.metrics.Reset()
	return err
}
