package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds configuration for the HTTP transport.
type Config struct {
	Target  string
	Method  string
	Headers map[string]string
	// Body and BodyFile are mutually exclusive. A body file is read once
	// when the transport opens.
	Body        string
	BodyFile    string
	Timeout     time.Duration
	Connections int
	// Propagate injects W3C trace context into request headers.
	Propagate bool
}

// template is the request every unit sends.
type template struct {
	method string
	url    string
	header http.Header
	body   []byte
}

func newTemplate(cfg Config) (*template, error) {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return nil, fmt.Errorf("target URL is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("target URL %q: scheme must be http or https", target)
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}

	header := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		key := strings.TrimSpace(k)
		if key == "" || strings.ContainsAny(key, " \r\n:") {
			return nil, fmt.Errorf("invalid header key %q", k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", key)
		}
		header.Set(key, v)
	}

	body, err := loadBody(cfg.Body, cfg.BodyFile)
	if err != nil {
		return nil, err
	}
	return &template{method: method, url: u.String(), header: header, body: body}, nil
}

func loadBody(inline, file string) ([]byte, error) {
	file = strings.TrimSpace(file)
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("body and body file cannot both be set")
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("body file: %w", err)
		}
		return data, nil
	}
	return nil, nil
}

// newRequest builds a fresh request; the body reader lets the client
// replay it on redirects.
func (t *template) newRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, t.method, t.url, bytes.NewReader(t.body))
	if err != nil {
		return nil, err
	}
	req.Header = t.header.Clone()
	return req, nil
}

// newClient returns a client with its own transport, so each client holds
// an independent set of TCP connections. Per-host limits are lifted: an
// overloaded target must surface as queueing, not as client-side
// connection starvation.
func newClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          4096,
			MaxIdleConnsPerHost:   4096,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}
