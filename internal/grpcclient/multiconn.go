package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"

	"github.com/lokal-id/netstress/internal/clientmetrics"
	"github.com/lokal-id/netstress/internal/pool"
)

// MultiConn spreads calls over several connections in strict rotation.
type MultiConn struct {
	rr    *pool.RoundRobin[*Conn]
	conns []*grpc.ClientConn
}

var _ grpc.ClientConnInterface = (*MultiConn)(nil)

// Open dials cfg.Connections connections in parallel and returns them as
// one MultiConn. Any connection failure closes the others.
func Open(ctx context.Context, cfg Config, extra ...grpc.DialOption) (*MultiConn, error) {
	n := cfg.Connections
	if n <= 0 {
		n = 1
	}
	if cfg.WaitReady {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DialTimeout)
			defer cancel()
		}
	}
	conns, err := pool.Dial(ctx, n, func(int) (*Conn, error) {
		return NewConn(cfg, extra...), nil
	})
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", cfg.Target, err)
	}
	return NewMultiConn(conns)
}

// NewMultiConn wraps already connected connections.
func NewMultiConn(conns []*Conn) (*MultiConn, error) {
	rr, err := pool.NewRoundRobin(conns)
	if err != nil {
		return nil, err
	}
	m := &MultiConn{rr: rr, conns: make([]*grpc.ClientConn, len(conns))}
	for i, c := range conns {
		cc := c.ClientConn()
		if cc == nil {
			return nil, fmt.Errorf("connection %d is not connected", i)
		}
		m.conns[i] = cc
	}
	return m, nil
}

// Invoke performs a unary RPC on the next connection in rotation.
func (m *MultiConn) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	i, c := m.rr.NextIndexed()
	err := m.conns[i].Invoke(ctx, method, args, reply, opts...)

	c.metrics.IncrementSent(messageSize(args))
	if err != nil {
		c.metrics.IncrementErrors()
		return err
	}
	c.metrics.IncrementReceived(messageSize(reply))
	return nil
}

// NewStream opens a stream on the next connection in rotation.
func (m *MultiConn) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	i, _ := m.rr.NextIndexed()
	return m.conns[i].NewStream(ctx, desc, method, opts...)
}

func (m *MultiConn) Len() int { return m.rr.Len() }

// ConnectionMetrics returns one snapshot per connection in index order.
func (m *MultiConn) ConnectionMetrics() []clientmetrics.Snapshot {
	items := m.rr.Items()
	out := make([]clientmetrics.Snapshot, len(items))
	for i, c := range items {
		out[i] = c.metrics.Snapshot()
	}
	return out
}

// Close closes every connection.
func (m *MultiConn) Close() error {
	return pool.CloseAll(m.rr.Items())
}

func messageSize(v any) int64 {
	if msg, ok := v.(proto.Message); ok {
		return int64(proto.Size(msg))
	}
	return 0
}
