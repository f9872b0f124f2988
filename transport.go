package umqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Transport errors.
var (
	ErrInvalidURI        = fmt.Errorf("%w: invalid broker URI", ErrFailed)
	ErrUnsupportedScheme = fmt.Errorf("%w: unsupported URI scheme", ErrFailed)
)

// Conn represents a network connection for MQTT communication.
type Conn interface {
	net.Conn
}

// Dialer establishes MQTT connections.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// URI schemes understood by ParseURI.
const (
	SchemeTCP  = "tcp"
	SchemeSSL  = "ssl"
	SchemeWS   = "ws"
	SchemeWSS  = "wss"
	SchemeUnix = "unix"
	SchemeQUIC = "quic"
)

var defaultPorts = map[string]string{
	SchemeWS:   "80",
	SchemeWSS:  "443",
	SchemeQUIC: "8883",
}

// Endpoint is a parsed broker URI.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
	Path   string

	raw string
}

// ParseURI parses a broker URI.
//
// tcp:// and ssl:// require an explicit port and IPv6 hosts in brackets,
// for example tcp://[::1]:1883. ws, wss and quic fall back to a default port.
// unix:///path names a socket file.
func ParseURI(uri string) (*Endpoint, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, ErrNilArgument
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	ep := &Endpoint{Scheme: strings.ToLower(u.Scheme), raw: uri}

	switch ep.Scheme {
	case SchemeUnix:
		ep.Path = u.Path
		if u.Host != "" && u.Host != "localhost" {
			ep.Path = u.Host + u.Path
		}
		if ep.Path == "" {
			return nil, fmt.Errorf("%w: missing socket path in %q", ErrInvalidURI, uri)
		}
		return ep, nil

	case SchemeTCP, SchemeSSL, SchemeWS, SchemeWSS, SchemeQUIC:

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	ep.Host = u.Hostname()
	ep.Port = u.Port()
	ep.Path = u.Path

	if ep.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURI, uri)
	}

	if strings.Contains(ep.Host, ":") && !strings.HasPrefix(u.Host, "[") {
		return nil, fmt.Errorf("%w: IPv6 host must be bracketed in %q", ErrInvalidURI, uri)
	}

	if ep.Port == "" {
		port, ok := defaultPorts[ep.Scheme]
		if !ok {
			return nil, fmt.Errorf("%w: missing port in %q", ErrInvalidURI, uri)
		}
		ep.Port = port
	}

	return ep, nil
}

// Address returns the string handed to the scheme's Dialer.
func (e *Endpoint) Address() string {
	switch e.Scheme {
	case SchemeUnix:
		return e.Path
	case SchemeWS, SchemeWSS:
		return e.raw
	default:
		return net.JoinHostPort(e.Host, e.Port)
	}
}

// String returns the original URI.
func (e *Endpoint) String() string {
	return e.raw
}

// TCPDialer connects to MQTT brokers over TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// Proxy, when set, tunnels the connection through a proxy.
	Proxy *ProxyDialer
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Proxy != nil {
		return d.Proxy.DialContext(ctx, "tcp", address)
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to MQTT brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration

	// Proxy, when set, tunnels the connection through a proxy before the TLS handshake.
	Proxy *ProxyDialer
}

func (d *TLSDialer) config() *tls.Config {
	if d.Config == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return d.Config
}

// Dial connects to the address.
func (d *TLSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Proxy == nil {
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: d.Timeout},
			Config:    d.config(),
		}
		return dialer.DialContext(ctx, "tcp", address)
	}

	raw, err := d.Proxy.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}

	cfg := d.config()
	if cfg.ServerName == "" {
		host, _, _ := net.SplitHostPort(address)
		cfg = cfg.Clone()
		cfg.ServerName = host
	}

	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	return tlsConn, nil
}

// resolveProxy returns the proxy URL configured for the endpoint, if any.
func resolveProxy(ep *Endpoint, o *clientOptions) string {
	if ep.Scheme == SchemeUnix || ep.Scheme == SchemeQUIC {
		return ""
	}
	if o.proxyURL != "" {
		return o.proxyURL
	}
	if o.proxyFromEnv {
		return ProxyFromEnvironment(ep.String())
	}
	return ""
}

// dialerFor returns the Dialer serving the endpoint's scheme.
func dialerFor(ep *Endpoint, o *clientOptions) (Dialer, error) {
	if o.dialer != nil {
		return o.dialer, nil
	}

	proxyURL := resolveProxy(ep, o)

	var proxy *ProxyDialer
	if proxyURL != "" && (ep.Scheme == SchemeTCP || ep.Scheme == SchemeSSL) {
		p, err := NewProxyDialer(proxyURL, o.proxyUsername, o.proxyPassword)
		if err != nil {
			return nil, err
		}
		proxy = p
	}

	switch ep.Scheme {
	case SchemeTCP:
		return &TCPDialer{Timeout: o.connectTimeout, Proxy: proxy}, nil
	case SchemeSSL:
		return &TLSDialer{Config: o.tlsConfig, Timeout: o.connectTimeout, Proxy: proxy}, nil
	case SchemeWS, SchemeWSS:
		d := NewWSDialer()
		d.Dialer.HandshakeTimeout = o.connectTimeout
		if o.tlsConfig != nil {
			d.Dialer.TLSClientConfig = o.tlsConfig
		}
		if proxyURL != "" {
			if err := d.SetProxy(proxyURL); err != nil {
				return nil, err
			}
		}
		return d, nil
	case SchemeUnix:
		return &UnixDialer{Timeout: o.connectTimeout}, nil
	case SchemeQUIC:
		return NewQUICDialer(o.tlsConfig), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, ep.Scheme)
	}
}
