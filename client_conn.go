package umqtt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// connectPacket builds the CONNECT for the configured identity.
func (c *Client) connectPacket() *ConnectPacket {
	o := c.options

	pkt := &ConnectPacket{
		ProtocolName:  o.protocolName,
		ProtocolLevel: o.protocolLevel,
		ClientID:      o.clientID,
		CleanSession:  o.cleanSession,
		KeepAlive:     uint16(min(o.connectKeepAlive/time.Second, maxUint16)),
		Username:      o.username,
	}

	if o.password != "" {
		pkt.Password = []byte(o.password)
	}

	o.will.applyTo(pkt)

	return pkt
}

// connectOnce dials the broker and sends CONNECT. It consumes one unit of
// the reconnect budget and does not wait for CONNACK.
func (c *Client) connectOnce(ctx context.Context) (Conn, error) {
	c.mu.Lock()
	c.reconnects++
	attempt := c.reconnects
	c.lastReconnect = time.Now()
	c.mu.Unlock()

	c.logger.Debug("connecting", LogFields{
		LogFieldRemoteAddr: c.endpoint.String(),
		LogFieldAttempt:    attempt,
	})

	dialCtx, cancel := context.WithTimeout(ctx, c.options.connectTimeout)
	defer cancel()

	conn, err := c.dialer.Dial(dialCtx, c.endpoint.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSockConnectFailed, err)
	}

	if err := c.writePacket(conn, c.connectPacket()); err != nil {
		conn.Close()
		return nil, err
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.mu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}

	select {
	case c.connReady <- struct{}{}:
	default:
	}

	return conn, nil
}

// connectBlocking dials, sends CONNECT and reads CONNACK synchronously,
// retrying after ReconnectDelay until the reconnect budget runs out.
// A refused CONNECT is final.
func (c *Client) connectBlocking(ctx context.Context) error {
	var lastErr error

	for {
		c.mu.Lock()
		exhausted := c.reconnects >= c.options.reconnectMax
		if exhausted {
			c.setStateLocked(StateDisconnect)
		}
		c.mu.Unlock()

		if exhausted {
			c.logger.Error("reconnect budget exhausted", LogFields{LogFieldAttempt: c.options.reconnectMax})
			if lastErr != nil {
				return fmt.Errorf("%w: %w", ErrReconnectFailed, lastErr)
			}
			return ErrReconnectFailed
		}

		conn, err := c.connectOnce(ctx)
		if err == nil {
			err = c.awaitConnack(conn)
			if err == nil {
				return nil
			}

			var connErr *ConnectError
			if errors.As(err, &connErr) {
				return err
			}

			c.dropConn(conn)

			if errors.Is(err, ErrTimeout) {
				return err
			}
		}

		lastErr = err
		c.logger.Warn("connect attempt failed", LogFields{
			LogFieldRemoteAddr: c.endpoint.String(),
			LogFieldError:      err.Error(),
		})

		if err := sleepCtx(ctx, c.options.reconnectDelay); err != nil {
			return err
		}
	}
}

// awaitConnack reads the first packet of a new connection, which must be CONNACK.
func (c *Client) awaitConnack(conn Conn) error {
	pkt, err := c.readPacket(conn, c.options.connectTimeout)
	if err != nil {
		if errors.Is(err, ErrReadTimeout) {
			return fmt.Errorf("%w: no CONNACK within %s", ErrTimeout, c.options.connectTimeout)
		}
		return err
	}

	c.mu.Lock()
	c.keepAlive.received(time.Now())
	c.mu.Unlock()

	ack, ok := pkt.(*ConnackPacket)
	if !ok {
		return fmt.Errorf("%w: expected CONNACK, got %s", ErrReadError, pkt.Type())
	}

	return c.handleConnack(ack)
}

// handleConnack moves to StateLinked on acceptance. A refusal is final:
// the transport closes and the state becomes StateDisconnect.
func (c *Client) handleConnack(p *ConnackPacket) error {
	if !p.ReturnCode.Accepted() {
		err := NewConnectError(p.ReturnCode)

		c.mu.Lock()
		c.setStateLocked(StateDisconnect)
		c.mu.Unlock()
		c.dropConn(nil)

		c.logger.Error("connection refused", LogFields{
			LogFieldReturnCode: byte(p.ReturnCode),
			LogFieldError:      err.Error(),
		})
		return err
	}

	now := time.Now()

	c.mu.Lock()
	c.setStateLocked(StateLinked)
	c.keepAlive.reset(now)
	c.reconnects = 0
	relink := c.linkedOnce && !p.SessionPresent && c.run != nil
	c.linkedOnce = true
	run := c.run
	c.mu.Unlock()

	c.logger.Info("connected", LogFields{
		LogFieldRemoteAddr: c.endpoint.String(),
		"session_present":  p.SessionPresent,
	})

	c.emit(EventOnline)

	// The broker forgot the subscriptions; replay them off the reader goroutine.
	if relink {
		run.group.Go(func() error {
			if run.ctx.Err() != nil {
				return nil
			}
			if err := c.resubscribe(); err != nil {
				c.logger.Warn("re-subscribe after reconnect failed", LogFields{LogFieldError: err.Error()})
			}
			return nil
		})
	}

	return nil
}

// send writes p to the current connection.
func (c *Client) send(p Packet) error {
	conn := c.currentConn()
	if conn == nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrDisconnected)
	}
	return c.writePacket(conn, p)
}

// writePacket encodes p into the send buffer and writes it to conn.
func (c *Client) writePacket(conn Conn, p Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.codec.Encode(c.sendBuf, p)
	if err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(c.options.sendTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	if _, err := conn.Write(c.sendBuf[:n]); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	now := time.Now()
	c.mu.Lock()
	if p.Type() == PacketPINGREQ {
		c.keepAlive.pinged(now)
	} else {
		c.keepAlive.sent(now)
	}
	c.mu.Unlock()

	c.metrics.packetSent(p.Type(), n)

	return nil
}

// sendDisconnect writes DISCONNECT on the current connection, best effort.
func (c *Client) sendDisconnect() {
	conn := c.currentConn()
	if conn == nil {
		return
	}

	if err := c.writePacket(conn, &DisconnectPacket{}); err != nil {
		c.logger.Debug("disconnect not sent", LogFields{LogFieldError: err.Error()})
	}
}

func (c *Client) currentConn() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// dropConn closes conn and clears it if it is still current.
// A nil conn drops whatever connection is current.
func (c *Client) dropConn(conn Conn) {
	c.mu.Lock()
	if conn == nil {
		conn = c.conn
	}
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
