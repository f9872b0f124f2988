package umqtt

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoServer accepts one connection and echoes everything back.
func startEchoServer(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, conn)
	}()

	return listener.Addr().String()
}

// startHTTPProxy runs a minimal HTTP CONNECT proxy. When wantAuth is set
// requests without matching Proxy-Authorization get 407.
func startHTTPProxy(t *testing.T, wantAuth string) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleProxyConn(conn, wantAuth)
		}
	}()

	return listener.Addr().String()
}

func handleProxyConn(conn net.Conn, wantAuth string) {
	defer conn.Close()

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		return
	}

	if req.Method != http.MethodConnect {
		_, _ = conn.Write([]byte("HTTP/1.1 405 Method Not Allowed\r\n\r\n"))
		return
	}

	if wantAuth != "" {
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte(wantAuth))
		if req.Header.Get("Proxy-Authorization") != expected {
			_, _ = conn.Write([]byte("HTTP/1.1 407 Proxy Authentication Required\r\n\r\n"))
			return
		}
	}

	target, err := net.Dial("tcp", req.Host)
	if err != nil {
		_, _ = conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		return
	}
	defer target.Close()

	_, _ = conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))

	relay(conn, target)
}

// startSOCKS5Proxy runs a minimal no-auth SOCKS5 proxy for IPv4 CONNECT.
func startSOCKS5Proxy(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleSOCKS5Conn(conn)
		}
	}()

	return listener.Addr().String()
}

func handleSOCKS5Conn(conn net.Conn) {
	defer conn.Close()

	greeting := make([]byte, 2)
	if _, err := io.ReadFull(conn, greeting); err != nil || greeting[0] != 5 {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, greeting[1])); err != nil {
		return
	}
	_, _ = conn.Write([]byte{5, 0})

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil || req[1] != 1 || req[3] != 1 {
		return
	}

	addr := make([]byte, 6)
	if _, err := io.ReadFull(conn, addr); err != nil {
		return
	}

	ip := net.IP(addr[:4])
	port := binary.BigEndian.Uint16(addr[4:])

	target, err := net.DialTCP("tcp", nil, &net.TCPAddr{IP: ip, Port: int(port)})
	if err != nil {
		_, _ = conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer target.Close()

	_, _ = conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0})

	relay(conn, target)
}

func relay(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		_, _ = io.Copy(a, b)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(b, a)
		done <- struct{}{}
	}()
	<-done
}

func assertEcho(t *testing.T, conn net.Conn) {
	t.Helper()

	_, err := WritePacket(conn, &PingreqPacket{}, 0)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	pkt, _, err := ReadPacket(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, PacketPINGREQ, pkt.Type())
}

func TestNewProxyDialer(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		username string
		password string
		wantUser string
		wantPass string
		err      error
	}{
		{name: "http", url: "http://proxy:3128"},
		{name: "https", url: "https://proxy:443"},
		{name: "socks5", url: "socks5://proxy:1080"},
		{name: "socks5h", url: "socks5h://proxy:1080"},
		{
			name:     "explicit credentials",
			url:      "http://proxy:3128",
			username: "alice",
			password: "secret",
			wantUser: "alice",
			wantPass: "secret",
		},
		{
			name:     "credentials from url",
			url:      "socks5://bob:pw@proxy:1080",
			wantUser: "bob",
			wantPass: "pw",
		},
		{
			name:     "explicit credentials win",
			url:      "http://bob:pw@proxy:3128",
			username: "alice",
			password: "secret",
			wantUser: "alice",
			wantPass: "secret",
		},
		{name: "invalid url", url: "http://[::1", err: ErrInvalidURI},
		{name: "unsupported scheme", url: "ftp://proxy:21", err: ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewProxyDialer(tt.url, tt.username, tt.password)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantUser, d.username)
			assert.Equal(t, tt.wantPass, d.password)
		})
	}
}

func TestProxyDialerProxyAddr(t *testing.T) {
	d, err := NewProxyDialer("http://proxy", "", "")
	require.NoError(t, err)
	assert.Equal(t, "proxy:8080", d.proxyAddr("8080"))

	d, err = NewProxyDialer("socks5://proxy:9050", "", "")
	require.NoError(t, err)
	assert.Equal(t, "proxy:9050", d.proxyAddr("1080"))
}

func TestProxyDialerHTTPConnect(t *testing.T) {
	target := startEchoServer(t)
	proxyAddr := startHTTPProxy(t, "")

	d, err := NewProxyDialer("http://"+proxyAddr, "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", target)
	require.NoError(t, err)
	defer conn.Close()

	assertEcho(t, conn)
}

func TestProxyDialerHTTPConnectAuth(t *testing.T) {
	target := startEchoServer(t)
	proxyAddr := startHTTPProxy(t, "user:pass")

	t.Run("accepted", func(t *testing.T) {
		d, err := NewProxyDialer("http://"+proxyAddr, "user", "pass")
		require.NoError(t, err)

		conn, err := d.DialContext(context.Background(), "tcp", target)
		require.NoError(t, err)
		defer conn.Close()

		assertEcho(t, conn)
	})

	t.Run("rejected", func(t *testing.T) {
		d, err := NewProxyDialer("http://"+proxyAddr, "user", "wrong")
		require.NoError(t, err)

		_, err = d.DialContext(context.Background(), "tcp", target)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProxyFailed)
		assert.ErrorIs(t, err, ErrSockConnectFailed)
		assert.Contains(t, err.Error(), "407")
	})
}

func TestProxyDialerHTTPConnectUnreachable(t *testing.T) {
	d, err := NewProxyDialer("http://127.0.0.1:1", "", "")
	require.NoError(t, err)

	_, err = d.DialContext(context.Background(), "tcp", "127.0.0.1:1883")
	assert.ErrorIs(t, err, ErrProxyFailed)
}

func TestProxyDialerSOCKS5(t *testing.T) {
	target := startEchoServer(t)
	proxyAddr := startSOCKS5Proxy(t)

	d, err := NewProxyDialer("socks5://"+proxyAddr, "", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := d.DialContext(ctx, "tcp", target)
	require.NoError(t, err)
	defer conn.Close()

	assertEcho(t, conn)
}

func TestTCPDialerThroughProxy(t *testing.T) {
	target := startEchoServer(t)
	proxyAddr := startHTTPProxy(t, "")

	proxy, err := NewProxyDialer("http://"+proxyAddr, "", "")
	require.NoError(t, err)

	conn, err := (&TCPDialer{Proxy: proxy}).Dial(context.Background(), target)
	require.NoError(t, err)
	defer conn.Close()

	assertEcho(t, conn)
}

func TestProxyFromEnvironment(t *testing.T) {
	tests := []struct {
		name       string
		httpProxy  string
		httpsProxy string
		noProxy    string
		uri        string
		want       string
	}{
		{
			name:      "tcp uses HTTP_PROXY",
			httpProxy: "http://plain:3128",
			uri:       "tcp://broker:1883",
			want:      "http://plain:3128",
		},
		{
			name:       "ssl prefers HTTPS_PROXY",
			httpProxy:  "http://plain:3128",
			httpsProxy: "http://secure:3129",
			uri:        "ssl://broker:8883",
			want:       "http://secure:3129",
		},
		{
			name:      "wss falls back to HTTP_PROXY",
			httpProxy: "http://plain:3128",
			uri:       "wss://broker/mqtt",
			want:      "http://plain:3128",
		},
		{
			name:       "ws ignores HTTPS_PROXY",
			httpsProxy: "http://secure:3129",
			uri:        "ws://broker/mqtt",
			want:       "",
		},
		{
			name:      "no proxy exact",
			httpProxy: "http://plain:3128",
			noProxy:   "broker",
			uri:       "tcp://broker:1883",
			want:      "",
		},
		{
			name:      "no proxy domain suffix",
			httpProxy: "http://plain:3128",
			noProxy:   "localhost, .internal",
			uri:       "tcp://mqtt.internal:1883",
			want:      "",
		},
		{
			name:      "no proxy other host",
			httpProxy: "http://plain:3128",
			noProxy:   "other",
			uri:       "tcp://broker:1883",
			want:      "http://plain:3128",
		},
		{
			name: "nothing set",
			uri:  "tcp://broker:1883",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HTTP_PROXY", tt.httpProxy)
			t.Setenv("http_proxy", "")
			t.Setenv("HTTPS_PROXY", tt.httpsProxy)
			t.Setenv("https_proxy", "")
			t.Setenv("NO_PROXY", tt.noProxy)
			t.Setenv("no_proxy", "")

			assert.Equal(t, tt.want, ProxyFromEnvironment(tt.uri))
		})
	}
}

func TestNoProxyMatches(t *testing.T) {
	tests := []struct {
		host    string
		noProxy string
		want    bool
	}{
		{"broker", "", false},
		{"broker", "*", true},
		{"broker", "broker", true},
		{"mqtt.example.com", "example.com", true},
		{"mqtt.example.com", ".example.com", true},
		{"example.com", ".example.com", true},
		{"badexample.com", "example.com", false},
		{"broker", " , other ,", false},
		{"10.0.0.1", "10.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.host+"/"+tt.noProxy, func(t *testing.T) {
			assert.Equal(t, tt.want, noProxyMatches(tt.host, tt.noProxy))
		})
	}
}
