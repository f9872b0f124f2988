package umqtt

import (
	"context"
	"time"
)

// timerLoop runs the keepalive check, the reconnect check and the QoS 2
// retry cycle once per tick.
func (c *Client) timerLoop(ctx context.Context, run *clientRun) error {
	ticker := time.NewTicker(c.options.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if c.tick(ctx, now) {
				run.cancelReader()
				return nil
			}
		}
	}
}

// tick runs one timer cycle and reports whether the client reached StateDisconnect.
func (c *Client) tick(ctx context.Context, now time.Time) bool {
	c.keepAliveTick(now)

	if c.reconnectTick(ctx, now) {
		return true
	}

	c.qos2Tick(now)
	return false
}

func (c *Client) keepAliveTick(now time.Time) {
	c.mu.Lock()
	if c.state != StateLinked {
		c.mu.Unlock()
		return
	}

	action := c.keepAlive.check(now)
	if action == keepAliveExpired {
		c.setStateLocked(StateUnlink)
	}
	conn := c.conn
	missed := c.keepAlive.count
	c.mu.Unlock()

	switch action {
	case keepAliveExpired:
		c.logger.Warn("keepalive expired", LogFields{LogFieldAttempt: missed})

	case keepAlivePing:
		if conn == nil {
			return
		}
		if err := c.writePacket(conn, &PingreqPacket{}); err != nil {
			c.logger.Debug("ping not sent", LogFields{LogFieldError: err.Error()})
			return
		}
		c.emit(EventHeartbeat)
	}
}

// reconnectTick tears down an expired link and paces reconnect attempts.
// It reports whether the reconnect budget is exhausted.
func (c *Client) reconnectTick(ctx context.Context, now time.Time) bool {
	c.mu.Lock()

	switch c.state {
	case StateUnlink:
		conn := c.conn
		c.conn = nil
		c.setStateLocked(StateUnlinkLinking)
		c.nextReconnect = now
		c.mu.Unlock()

		c.emit(EventOffline)
		if conn != nil {
			conn.Close()
		}
		return false

	case StateUnlinkLinking:
		if now.Before(c.nextReconnect) {
			c.mu.Unlock()
			return false
		}

		// A conn still open here never got its CONNACK.
		if conn := c.conn; conn != nil {
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
			return false
		}

		if c.reconnects >= c.options.reconnectMax {
			c.setStateLocked(StateDisconnect)
			c.mu.Unlock()
			c.logger.Error("reconnect budget exhausted", LogFields{LogFieldAttempt: c.options.reconnectMax})
			return true
		}

		c.keepAlive.count = 0
		c.nextReconnect = now.Add(c.options.reconnectInterval)
		c.mu.Unlock()

		c.metrics.reconnect()

		if _, err := c.connectOnce(ctx); err != nil {
			c.logger.Warn("reconnect attempt failed", LogFields{
				LogFieldRemoteAddr: c.endpoint.String(),
				LogFieldError:      err.Error(),
			})
		}

		c.emit(EventLink)
		return false

	case StateDisconnect:
		c.mu.Unlock()
		return true

	default:
		c.mu.Unlock()
		return false
	}
}

// qos2Tick resends PUBREC for due inbound QoS 2 messages and drops those out of retries.
func (c *Client) qos2Tick(now time.Time) {
	resend, dropped := c.qos2.RetryCycle(now)

	if len(dropped) > 0 {
		c.metrics.qos2Dropped(len(dropped))
		for _, msg := range dropped {
			c.logger.Warn("QoS 2 message dropped, no PUBREL", LogFields{
				LogFieldPacketID: msg.PacketID,
				LogFieldTopic:    msg.Topic,
			})
		}
	}

	if len(resend) == 0 {
		return
	}

	conn := c.currentConn()
	if conn == nil {
		return
	}

	for _, id := range resend {
		c.reply(conn, &PubrecPacket{PacketID: id})
	}
}
