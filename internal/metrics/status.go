package metrics

import (
	"context"
	"errors"
	"sort"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatusBucket represents the aggregated failure count for a protocol/code pair.
type StatusBucket struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	Code     string `json:"code" yaml:"code"`
	Count    int    `json:"count" yaml:"count"`
}

// StatusCoder is implemented by errors that know their protocol status.
type StatusCoder interface {
	error
	Status() (protocol, code string)
}

// ClassifyFailure maps a unit error to a protocol/code pair.
func ClassifyFailure(err error) (protocol, code string) {
	var sc StatusCoder
	switch {
	case err == nil:
		return "", ""
	case errors.As(err, &sc):
		return sc.Status()
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", "deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled", "context canceled"
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return "grpc", s.Code().String()
	}
	return transportKind(err)
}

// FailureBreakdown accumulates failures by protocol and code.
type FailureBreakdown struct {
	mu      sync.Mutex
	buckets map[string]map[string]int
}

func NewFailureBreakdown() *FailureBreakdown {
	return &FailureBreakdown{buckets: make(map[string]map[string]int)}
}

// Record classifies err and counts it.
func (b *FailureBreakdown) Record(err error) {
	protocol, code := ClassifyFailure(err)
	if protocol == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	codesFor := b.buckets[protocol]
	if codesFor == nil {
		codesFor = make(map[string]int)
		b.buckets[protocol] = codesFor
	}
	codesFor[code]++
}

// Rows returns the breakdown flattened and sorted.
func (b *FailureBreakdown) Rows() []StatusBucket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return FlattenStatusBuckets(b.buckets)
}

func (b *FailureBreakdown) Reset() {
	b.mu.Lock()
	b.buckets = make(map[string]map[string]int)
	b.mu.Unlock()
}

// FlattenStatusBuckets converts a nested protocol->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by protocol/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for protocol, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Protocol: protocol, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Protocol == rows[j].Protocol {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Protocol < rows[j].Protocol
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
