package umqtt

import (
	"context"
	"fmt"
	"net"
	"time"
)

// UnixDialer connects to brokers listening on a Unix domain socket.
type UnixDialer struct {
	// Timeout bounds the connect. Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the socket file at path, as returned by Endpoint.Address
// for unix:// URIs.
func (d *UnixDialer) Dial(ctx context.Context, path string) (Conn, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty socket path", ErrInvalidURI)
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "unix", path)
}

// NewUnixDialer returns a Unix socket dialer without a connect timeout.
func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}
