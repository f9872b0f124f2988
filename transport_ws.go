package umqtt

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// WebSocketSubprotocol is the MQTT WebSocket subprotocol.
	WebSocketSubprotocol = "mqtt"
)

// ErrTextFrame is returned when a broker sends a non-binary WebSocket frame.
var ErrTextFrame = fmt.Errorf("%w: websocket frame is not binary", ErrReadFailed)

// WSConn adapts a WebSocket connection to net.Conn.
//
// Each Write is sent as one binary message. A pump goroutine reads whole
// messages and Read streams their payloads back to back, so a packet may
// span messages. Read deadlines are enforced here rather than on the
// websocket, which cannot survive a read timeout.
type WSConn struct {
	conn   *websocket.Conn
	frames chan wsFrame
	done   chan struct{}
	once   sync.Once

	mu           sync.Mutex
	readDeadline time.Time

	// Owned by the reading goroutine.
	pending []byte
	readErr error
}

type wsFrame struct {
	data []byte
	err  error
}

func newWSConn(conn *websocket.Conn) *WSConn {
	c := &WSConn{
		conn:   conn,
		frames: make(chan wsFrame, 1),
		done:   make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *WSConn) pump() {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err == nil && kind != websocket.BinaryMessage {
			err = ErrTextFrame
		}

		select {
		case c.frames <- wsFrame{data: data, err: err}:
		case <-c.done:
			return
		}

		if err != nil {
			return
		}
	}
}

// Read copies payload bytes of the received binary messages into b.
func (c *WSConn) Read(b []byte) (int, error) {
	for len(c.pending) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		if err := c.nextFrame(); err != nil {
			return 0, err
		}
	}

	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *WSConn) nextFrame() error {
	c.mu.Lock()
	deadline := c.readDeadline
	c.mu.Unlock()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		wait := time.Until(deadline)
		if wait <= 0 {
			return os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case f := <-c.frames:
		if f.err != nil {
			c.readErr = f.err
			return f.err
		}
		c.pending = f.data
		return nil
	case <-expired:
		return os.ErrDeadlineExceeded
	case <-c.done:
		return net.ErrClosed
	}
}

// Write writes data to the connection as a binary message.
func (c *WSConn) Write(b []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close sends a close frame when possible and closes the connection.
func (c *WSConn) Close() error {
	err := net.ErrClosed
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}

// LocalAddr returns the local network address.
func (c *WSConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *WSConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline sets the read and write deadlines.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// SetReadDeadline sets the deadline for future Read calls.
func (c *WSConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline = t
	c.mu.Unlock()
	return nil
}

// SetWriteDeadline sets the write deadline.
func (c *WSConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// WSDialer connects to MQTT brokers over WebSocket.
type WSDialer struct {
	// Dialer is the underlying WebSocket dialer.
	Dialer *websocket.Dialer

	// Header is the HTTP header to send with the handshake.
	Header http.Header
}

// Dial connects to the ws:// or wss:// URL.
func (d *WSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := d.Header
	if header == nil {
		header = http.Header{}
	}

	conn, resp, err := dialer.DialContext(ctx, address, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return newWSConn(conn), nil
}

// SetProxy routes the handshake through an HTTP or SOCKS5 proxy.
func (d *WSDialer) SetProxy(proxyURL string) error {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	if d.Dialer == nil {
		d.Dialer = &websocket.Dialer{Subprotocols: []string{WebSocketSubprotocol}}
	}
	d.Dialer.Proxy = http.ProxyURL(u)
	return nil
}

// NewWSDialer creates a new WebSocket dialer with MQTT subprotocol.
func NewWSDialer() *WSDialer {
	return &WSDialer{
		Dialer: &websocket.Dialer{
			Subprotocols:    []string{WebSocketSubprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}
