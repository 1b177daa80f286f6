package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lokal-id/netstress/internal/runner"
)

func TestRequesterRotatesConnections(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"time":"now"}`))
	}))
	defer server.Close()

	req, err := Open(context.Background(), Config{Target: server.URL + "/local", Connections: 4, Timeout: time.Second})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer req.Close()

	for i := 0; i < 8; i++ {
		if err := req.Do(context.Background()); err != nil {
			t.Fatalf("Do #%d: %v", i, err)
		}
	}
	if hits.Load() != 8 {
		t.Fatalf("server saw %d requests, want 8", hits.Load())
	}
	for i, s := range req.ConnectionMetrics() {
		if s.MessagesSent != 2 {
			t.Errorf("connection %d sent %d, want 2", i, s.MessagesSent)
		}
		if s.BytesReceived != int64(len(`{"time":"now"}`))*2 {
			t.Errorf("connection %d received %d bytes", i, s.BytesReceived)
		}
	}
}

func TestRequesterNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	req, err := Open(context.Background(), Config{Target: server.URL})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer req.Close()

	err = req.Do(context.Background())
	var httpErr *runner.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", httpErr.StatusCode)
	}
	if req.ConnectionMetrics()[0].Errors != 1 {
		t.Fatalf("error not counted")
	}
}

func TestRequesterRedirectStatusIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	req, err := Open(context.Background(), Config{Target: server.URL})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer req.Close()

	if err := req.Do(context.Background()); err != nil {
		t.Fatalf("304 should succeed, got %v", err)
	}
}

func TestRequesterPropagatesCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	req, err := Open(context.Background(), Config{Target: server.URL})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer req.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := req.Do(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestOpenRejectsMissingTarget(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for missing target")
	}
}
