package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lokal-id/netstress/internal/clientmetrics"
	"github.com/lokal-id/netstress/internal/pool"
	"github.com/lokal-id/netstress/internal/runner"
	"github.com/lokal-id/netstress/internal/tracing"
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 512

// Conn is one http.Client with its own transport and counters.
type Conn struct {
	client  *http.Client
	metrics *clientmetrics.ClientMetrics
}

func newConn(timeout time.Duration) *Conn {
	return &Conn{client: newClient(timeout), metrics: clientmetrics.New()}
}

func (c *Conn) Connect(context.Context) error {
	c.metrics.MarkConnected()
	return nil
}

func (c *Conn) Close() error {
	c.client.CloseIdleConnections()
	c.metrics.Reset()
	return nil
}

// Requester sends one request per unit of work, rotating over connections.
// Responses outside 2xx and 3xx are failures.
type Requester struct {
	tmpl      *template
	rr        *pool.RoundRobin[*Conn]
	propagate bool
}

// Open builds the request template and cfg.Connections independent clients.
func Open(ctx context.Context, cfg Config) (*Requester, error) {
	tmpl, err := newTemplate(cfg)
	if err != nil {
		return nil, err
	}
	n := cfg.Connections
	if n <= 0 {
		n = 1
	}
	conns, err := pool.Dial(ctx, n, func(int) (*Conn, error) {
		return newConn(cfg.Timeout), nil
	})
	if err != nil {
		return nil, err
	}
	rr, err := pool.NewRoundRobin(conns)
	if err != nil {
		return nil, err
	}
	return &Requester{tmpl: tmpl, rr: rr, propagate: cfg.Propagate}, nil
}

// Do implements runner.Requester.
func (r *Requester) Do(ctx context.Context) error {
	req, err := r.tmpl.newRequest(ctx)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	_, conn := r.rr.NextIndexed()
	conn.metrics.IncrementSent(int64(len(r.tmpl.body)))

	resp, err := conn.client.Do(req)
	if err != nil {
		conn.metrics.IncrementErrors()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_, _ = io.Copy(io.Discard, resp.Body)
		conn.metrics.IncrementErrors()
		return &runner.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		conn.metrics.IncrementErrors()
		return fmt.Errorf("read response body: %w", err)
	}
	conn.metrics.IncrementReceived(n)
	return nil
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

// Close releases idle connections of every client.
func (r *Requester) Close() error {
	return pool.CloseAll(r.rr.Items())
}
