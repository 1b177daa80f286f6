package metrics

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// transportKind names the network-level cause of a failure that carries no
// protocol status.
func transportKind(err error) (protocol, code string) {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &dnsErr):
		return "net", "dns lookup failed"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "net", "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "net", "connection reset"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "net", "unexpected eof"
	case errors.As(err, &opErr):
		return "net", opErr.Op + " failed"
	case errors.As(err, &urlErr) && urlErr.Timeout():
		return "timeout", "client timeout"
	}
	return "error", innermostType(err)
}

// innermostType returns the dynamic type of the last error in err's chain
// with the import path trimmed, e.g. "errors.errorString".
func innermostType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
