package host

import (
	"context"
	"net"
	"time"
)

// TCPReachable returns a readiness check that succeeds once target accepts a
// TCP connection within timeout.
func TCPReachable(target string, timeout time.Duration) func(context.Context) bool {
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}
