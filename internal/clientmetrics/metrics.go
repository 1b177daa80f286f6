// Package clientmetrics counts traffic carried by one transport connection.
package clientmetrics

import (
	"sync/atomic"
	"time"
)

// ClientMetrics tracks call and byte statistics for one connection. All
// counters are atomic so workers sharing a connection never serialize on it.
type ClientMetrics struct {
	connectedAt  atomic.Int64 // unix nanos, 0 when disconnected
	messagesSent atomic.Int64
	messagesRecv atomic.Int64
	bytesSent    atomic.Int64
	bytesRecv    atomic.Int64
	errors       atomic.Int64
}

// New creates a new ClientMetrics instance.
func New() *ClientMetrics {
	return &ClientMetrics{}
}

// MarkConnected records the connection time.
func (m *ClientMetrics) MarkConnected() {
	m.connectedAt.Store(time.Now().UnixNano())
}

// IncrementSent increments messages sent and bytes sent counters.
func (m *ClientMetrics) IncrementSent(bytes int64) {
	m.messagesSent.Add(1)
	m.bytesSent.Add(bytes)
}

// IncrementReceived increments messages received and bytes received counters.
func (m *ClientMetrics) IncrementReceived(bytes int64) {
	m.messagesRecv.Add(1)
	m.bytesRecv.Add(bytes)
}

// IncrementErrors increments the error counter.
func (m *ClientMetrics) IncrementErrors() {
	m.errors.Add(1)
}

// Reset clears the connection time (used when disconnecting).
func (m *ClientMetrics) Reset() {
	m.connectedAt.Store(0)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ConnectionDuration time.Duration
	MessagesSent       int64
	MessagesReceived   int64
	BytesSent          int64
	BytesReceived      int64
	Errors             int64
}

// Snapshot returns the current counter values.
func (m *ClientMetrics) Snapshot() Snapshot {
	var duration time.Duration
	if at := m.connectedAt.Load(); at != 0 {
		duration = time.Since(time.Unix(0, at))
	}
	return Snapshot{
		ConnectionDuration: duration,
		MessagesSent:       m.messagesSent.Load(),
		MessagesReceived:   m.messagesRecv.Load(),
		BytesSent:          m.bytesSent.Load(),
		BytesReceived:      m.bytesRecv.Load(),
		Errors:             m.errors.Load(),
	}
}

// Reporter is implemented by transports that expose one ClientMetrics per
// connection.
type Reporter interface {
	ConnectionMetrics() []Snapshot
}
