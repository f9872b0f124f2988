package umqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// readLoop reads and handles packets until ctx ends or the client reaches
// StateDisconnect.
func (c *Client) readLoop(ctx context.Context, run *clientRun) error {
	for ctx.Err() == nil {
		conn := c.currentConn()
		if conn == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-c.connReady:
			}
			continue
		}

		pkt, err := c.readPacket(conn, c.options.recvTimeout)
		if err != nil {
			switch {
			case errors.Is(err, ErrReadTimeout):
				continue

			case errors.Is(err, ErrBufferTooShort):
				c.logger.Warn("oversize packet discarded", LogFields{LogFieldError: err.Error()})
				continue

			case errors.Is(err, ErrDecode):
				c.logger.Warn("undecodable packet discarded", LogFields{LogFieldError: err.Error()})
				continue

			default:
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Debug("connection lost", LogFields{LogFieldError: err.Error()})
				if c.handleFin(ctx, conn) {
					run.cancelTimer()
					return nil
				}
				continue
			}
		}

		c.handlePacket(conn, pkt)

		if c.State() == StateDisconnect {
			run.cancelTimer()
			return nil
		}
	}

	return nil
}

// readPacket reads one packet from conn into the receive buffer.
//
// An idle read that times out before any byte arrives is ErrReadTimeout.
// A complete packet whose body does not decode is ErrDecode. A closed
// stream is ErrFinAck; any other failure, including a timeout in the middle
// of a packet or a malformed fixed header, is ErrReadFailed.
func (c *Client) readPacket(conn Conn, timeout time.Duration) (Packet, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	pkt, n, err := readPacketInto(conn, c.recvBuf)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout() && n == 0:
			return nil, ErrReadTimeout
		case errors.Is(err, ErrBufferTooShort), errors.Is(err, ErrDecode):
			return nil, err
		case isFin(err):
			return nil, fmt.Errorf("%w: %w", ErrFinAck, err)
		case errors.Is(err, ErrReadFailed):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
		}
	}

	c.metrics.packetReceived(pkt.Type(), n)

	return pkt, nil
}

// isFin reports whether err means the peer or the client closed the stream.
func isFin(err error) bool {
	var closeErr *websocket.CloseError
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &closeErr)
}

// handleFin reacts to a lost connection and reports whether the reader must stop.
//
// While linked the reader reconnects itself: StateLinking keeps the timer
// quiet, then the blocking connect loop runs after ReconnectDelay. In any
// other state the conn is dropped and the timer recovers.
func (c *Client) handleFin(ctx context.Context, conn Conn) bool {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return false
	}

	c.conn = nil
	linked := c.state == StateLinked
	if linked {
		c.setStateLocked(StateLinking)
	}
	c.mu.Unlock()

	conn.Close()

	if !linked {
		return c.State() == StateDisconnect
	}

	c.logger.Warn("connection closed by peer, reconnecting", LogFields{
		LogFieldRemoteAddr: c.endpoint.String(),
	})

	if err := sleepCtx(ctx, c.options.reconnectDelay); err != nil {
		return true
	}

	c.metrics.reconnect()

	err := c.connectBlocking(ctx)
	switch {
	case err == nil:
		return false

	case ctx.Err() != nil:
		return true

	case errors.Is(err, ErrTimeout):
		c.mu.Lock()
		c.setStateLocked(StateUnlinkLinking)
		c.nextReconnect = time.Now().Add(c.options.reconnectInterval)
		c.mu.Unlock()
		return false

	default:
		c.logger.Error("reconnect failed", LogFields{LogFieldError: err.Error()})
		return c.State() == StateDisconnect
	}
}

// handlePacket processes one inbound packet.
func (c *Client) handlePacket(conn Conn, pkt Packet) {
	now := time.Now()

	c.mu.Lock()
	c.keepAlive.received(now)
	c.mu.Unlock()

	switch p := pkt.(type) {
	case *ConnackPacket:
		_ = c.handleConnack(p)

	case *PublishPacket:
		c.handlePublish(conn, p, now)

	case *PubrelPacket:
		if msg, ok := c.qos2.Release(p.PacketID); ok {
			c.dispatch(msg)
		}
		c.reply(conn, &PubcompPacket{PacketID: p.PacketID})

	case *PubackPacket:
		c.pushAck(ackEntry{Type: PacketPUBACK, PacketID: p.PacketID})

	case *PubrecPacket:
		c.pushAck(ackEntry{Type: PacketPUBREC, PacketID: p.PacketID})

	case *PubcompPacket:
		c.pushAck(ackEntry{Type: PacketPUBCOMP, PacketID: p.PacketID})

	case *SubackPacket:
		c.pushAck(ackEntry{Type: PacketSUBACK, PacketID: p.PacketID, Codes: p.ReturnCodes})

	case *UnsubackPacket:
		c.pushAck(ackEntry{Type: PacketUNSUBACK, PacketID: p.PacketID})

	case *PingrespPacket:

	default:
		c.logger.Warn("unexpected packet", LogFields{
			LogFieldPacketType: pkt.Type().String(),
			LogFieldError:      ErrReadError.Error(),
		})
	}
}

func (c *Client) handlePublish(conn Conn, p *PublishPacket, now time.Time) {
	msg := p.ToMessage()

	switch p.QoS {
	case 0:
		c.dispatch(msg)

	case 1:
		c.dispatch(msg)
		c.reply(conn, &PubackPacket{PacketID: p.PacketID})

	case 2:
		if err := c.qos2.Track(p.PacketID, msg, now); err != nil {
			c.logger.Warn("QoS 2 queue full, message not tracked", LogFields{
				LogFieldPacketID: p.PacketID,
				LogFieldTopic:    p.Topic,
				LogFieldError:    err.Error(),
			})
		}
		c.reply(conn, &PubrecPacket{PacketID: p.PacketID})
	}
}

func (c *Client) dispatch(msg *Message) {
	if c.subs.Dispatch(msg) == 0 {
		c.logger.Debug("no subscription for message", LogFields{LogFieldTopic: msg.Topic})
	}
}

// reply writes an acknowledgment; failures surface through the next read.
func (c *Client) reply(conn Conn, p Packet) {
	if err := c.writePacket(conn, p); err != nil {
		c.logger.Debug("reply not sent", LogFields{
			LogFieldPacketType: p.Type().String(),
			LogFieldError:      err.Error(),
		})
	}
}

func (c *Client) pushAck(e ackEntry) {
	if !c.acks.push(e) {
		c.logger.Warn("ack queue full, acknowledgment dropped", LogFields{
			LogFieldPacketType: e.Type.String(),
			LogFieldPacketID:   e.PacketID,
		})
	}
}
