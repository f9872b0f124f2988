package umqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Client is an MQTT 3.1.1 client.
//
// A Client owns one transport connection at a time. After Start it runs a
// reader goroutine that handles inbound packets and a timer goroutine that
// drives keepalive, reconnection and QoS 2 PUBREC resends.
type Client struct {
	endpoint *Endpoint
	options  *clientOptions
	dialer   Dialer
	codec    *Codec
	logger   Logger
	metrics  *clientMetrics

	// sendBuf is guarded by writeMu. recvBuf belongs to whichever goroutine
	// reads the conn: Start before the reader runs, then the reader.
	sendBuf []byte
	recvBuf []byte

	packetIDs *PacketIDManager
	subs      *SubscriptionTable
	qos2      *QoS2Tracker
	acks      *ackQueue
	flow      *FlowController

	// mu guards everything below it and is never held across I/O.
	mu            sync.Mutex
	state         ClientState
	conn          Conn
	keepAlive     *keepAlive
	nextReconnect time.Time
	lastReconnect time.Time
	reconnects    int
	linkedOnce    bool
	onEvent       EventHandler
	run           *clientRun

	connReady chan struct{}

	writeMu sync.Mutex
	opMu    sync.Mutex

	// lifeMu serialises Start, Stop and Delete.
	lifeMu sync.Mutex
	closed atomic.Bool
}

// clientRun holds the goroutines of one Start/Stop cycle.
type clientRun struct {
	ctx          context.Context
	cancel       context.CancelFunc
	cancelReader context.CancelFunc
	cancelTimer  context.CancelFunc
	group        *errgroup.Group
}

// New creates a client for the broker URI. No goroutine runs until Start.
func New(uri string, opts ...Option) (*Client, error) {
	endpoint, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	options := applyOptions(opts...)

	dialer, err := dialerFor(endpoint, options)
	if err != nil {
		return nil, err
	}

	c := &Client{
		endpoint: endpoint,
		options:  options,
		dialer:   dialer,
		codec: &Codec{
			ProtocolName:    options.protocolName,
			ProtocolLevel:   options.protocolLevel,
			MaxTopicFilters: options.maxTopicFilters,
		},
		logger:    options.logger.WithFields(LogFields{LogFieldClientID: options.clientID}),
		metrics:   newClientMetrics(options.metrics, options.clientID),
		sendBuf:   make([]byte, options.sendBufferSize),
		recvBuf:   make([]byte, options.recvBufferSize),
		packetIDs: NewPacketIDManager(),
		subs:      NewSubscriptionTable(options.maxSubscriptions),
		qos2:      NewQoS2Tracker(options.qos2QueueSize, options.publishRetries, options.pubrecInterval),
		acks:      newAckQueue(options.ackQueueSize),
		flow:      NewFlowController(options.publishRate, options.publishBurst),
		state:     StateIdle,
		keepAlive: newKeepAlive(options.keepAliveInterval, options.connectKeepAlive,
			options.sendTimeout, options.keepAliveMax),
		onEvent:   options.onEvent,
		connReady: make(chan struct{}, 1),
	}

	if will := options.will; will != nil {
		if err := will.Validate(); err != nil {
			return nil, fmt.Errorf("invalid will: %w", err)
		}
		if _, err := c.subs.Add(Subscription{
			Filter:  will.Topic,
			QoS:     will.QoS,
			Handler: options.willHandler,
		}); err != nil {
			return nil, fmt.Errorf("register will subscription: %w", err)
		}
	}

	c.metrics.state(StateIdle)

	return c, nil
}

// Start connects to the broker, starts the reader and timer goroutines and
// re-subscribes every entry of the subscription table. Subscription errors
// do not stop the loop; the first one is returned.
//
// Start on a running client is a no-op. After Disconnect it tears down the
// idle goroutines and connects again. In StateDisconnect it returns
// ErrReconnectFailed until Stop resets the client.
func (c *Client) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.mu.Lock()
	state, cur := c.state, c.run
	c.mu.Unlock()

	switch {
	case state == StateDisconnect:
		// Refused or out of reconnect budget; Stop resets the client.
		return ErrReconnectFailed
	case cur != nil && state != StateIdle:
		return nil
	case cur != nil:
		// Disconnect left the goroutines running without a link.
		if err := c.stopLocked(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.reconnects = 0
	c.linkedOnce = false
	c.setStateLocked(StateLinking)
	c.mu.Unlock()

	if err := c.connectBlocking(ctx); err != nil {
		c.dropConn(nil)
		c.mu.Lock()
		if c.state != StateDisconnect {
			c.setStateLocked(StateIdle)
		}
		c.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	readerCtx, cancelReader := context.WithCancel(runCtx)
	timerCtx, cancelTimer := context.WithCancel(runCtx)

	run := &clientRun{
		ctx:          runCtx,
		cancel:       cancel,
		cancelReader: cancelReader,
		cancelTimer:  cancelTimer,
		group:        new(errgroup.Group),
	}

	c.mu.Lock()
	c.run = run
	c.mu.Unlock()

	run.group.Go(func() error { return c.readLoop(readerCtx, run) })
	run.group.Go(func() error { return c.timerLoop(timerCtx, run) })

	c.logger.Info("client started", LogFields{LogFieldRemoteAddr: c.endpoint.String()})

	return c.resubscribe()
}

// Stop sends DISCONNECT, closes the transport and waits for the client
// goroutines to exit. It is idempotent.
func (c *Client) Stop() error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	return c.stopLocked()
}

func (c *Client) stopLocked() error {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run != nil {
		run.cancel()
	}

	c.sendDisconnect()
	c.dropConn(nil)

	if run != nil {
		if err := run.group.Wait(); err != nil {
			c.logger.Warn("client goroutine failed", LogFields{LogFieldError: err.Error()})
		}
	}

	// The timer may have dialed while the goroutines wound down.
	c.dropConn(nil)

	c.mu.Lock()
	c.run = nil
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	c.acks.drain()

	if run != nil {
		c.logger.Info("client stopped", nil)
	}

	return nil
}

// Delete stops the client and releases its tables. Every later call
// returns ErrClientClosed.
func (c *Client) Delete() error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	err := c.stopLocked()
	c.subs.Clear()
	c.qos2.Clear()
	return err
}

// State returns the current connection state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns a copy of the subscription table in insertion order.
func (c *Client) Subscriptions() []Subscription {
	return c.subs.Entries()
}

// usable reports whether façade operations may proceed.
func (c *Client) usable() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.State() == StateDisconnect {
		return ErrReconnectFailed
	}
	return nil
}

// Publish sends msg and, for QoS 1 and 2, waits for the broker's
// acknowledgments. Each wait lasts timeout; an unanswered packet is resent
// with DUP set until the retry budget runs out.
func (c *Client) Publish(msg *Message, timeout time.Duration) error {
	pkt, err := c.preparePublish(msg)
	if err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = c.options.recvTimeout
	}

	if c.flow.Limited() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := c.flow.Wait(ctx)
		cancel()
		if err != nil {
			return err
		}
	}

	if pkt.QoS == 0 {
		return c.send(pkt)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	pkt.PacketID = c.packetIDs.Next()

	switch pkt.QoS {
	case 1:
		_, err = c.sendAndWait(pkt, PacketPUBACK, timeout, func() { pkt.DUP = true })
		return err

	default:
		if _, err := c.sendAndWait(pkt, PacketPUBREC, timeout, func() { pkt.DUP = true }); err != nil {
			return err
		}
		_, err = c.sendAndWait(&PubrelPacket{PacketID: pkt.PacketID}, PacketPUBCOMP, timeout, nil)
		return err
	}
}

// PublishAsync sends msg without waiting for acknowledgments.
func (c *Client) PublishAsync(msg *Message) error {
	pkt, err := c.preparePublish(msg)
	if err != nil {
		return err
	}

	if c.flow.Limited() && !c.flow.Allow() {
		return fmt.Errorf("%w: publish rate exceeded", ErrMemFull)
	}

	if pkt.QoS > 0 {
		pkt.PacketID = c.packetIDs.Next()
	}

	return c.send(pkt)
}

func (c *Client) preparePublish(msg *Message) (*PublishPacket, error) {
	if msg == nil {
		return nil, ErrNilArgument
	}

	if err := c.usable(); err != nil {
		return nil, err
	}

	if err := ValidateTopicName(msg.Topic); err != nil {
		return nil, err
	}

	if msg.QoS > 2 {
		return nil, ErrInvalidQoS
	}

	return &PublishPacket{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
	}, nil
}

// Subscribe sends SUBSCRIBE for filter and, once the broker grants it,
// adds the entry to the subscription table.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := c.usable(); err != nil {
		return err
	}

	if err := ValidateTopicFilter(filter); err != nil {
		return err
	}

	if qos > 2 {
		return ErrInvalidSubscribeQoS
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.subs.Contains(filter) {
		return ErrAlreadySubscribed
	}

	if c.subs.Len() >= c.subs.Cap() {
		return ErrMemFull
	}

	sub := Subscription{Filter: filter, QoS: qos, Handler: handler}

	if err := c.subscribeRemote(sub); err != nil {
		return err
	}

	_, err := c.subs.Add(sub)
	return err
}

// subscribeRemote runs one SUBSCRIBE/SUBACK exchange. opMu must be held.
func (c *Client) subscribeRemote(sub Subscription) error {
	pkt := &SubscribePacket{
		PacketID:      c.packetIDs.Next(),
		Subscriptions: []Subscription{sub},
	}

	ack, err := c.sendAndWait(pkt, PacketSUBACK, c.options.recvTimeout, nil)
	if err != nil {
		return err
	}

	if len(ack.Codes) == 0 || ack.Codes[0].Failed() {
		c.logger.Warn("subscription refused", LogFields{
			LogFieldTopic:    sub.Filter,
			LogFieldQoS:      sub.QoS,
			LogFieldPacketID: pkt.PacketID,
		})
		return fmt.Errorf("%w: %s", ErrSubscribeRefused, sub.Filter)
	}

	return nil
}

// resubscribe sends SUBSCRIBE for every table entry.
func (c *Client) resubscribe() error {
	entries := c.subs.Entries()
	if len(entries) == 0 {
		return nil
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	var first error
	for _, sub := range entries {
		if err := c.subscribeRemote(sub); err != nil {
			c.logger.Warn("re-subscribe failed", LogFields{
				LogFieldTopic: sub.Filter,
				LogFieldError: err.Error(),
			})
			if first == nil {
				first = err
			}
		}
	}

	return first
}

// Unsubscribe sends UNSUBSCRIBE for filter and removes the table entry
// once the broker acknowledges it.
func (c *Client) Unsubscribe(filter string) error {
	if err := c.usable(); err != nil {
		return err
	}

	if filter == "" {
		return ErrNilArgument
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.subs.Contains(filter) {
		return ErrNotSubscribed
	}

	pkt := &UnsubscribePacket{
		PacketID:     c.packetIDs.Next(),
		TopicFilters: []string{filter},
	}

	if _, err := c.sendAndWait(pkt, PacketUNSUBACK, c.options.recvTimeout, nil); err != nil {
		return err
	}

	c.subs.Remove(filter)
	return nil
}

// sendAndWait sends p and waits for the acknowledgment of type expect
// carrying the same packet ID. onRetry runs before every resend.
func (c *Client) sendAndWait(p PacketWithID, expect PacketType, timeout time.Duration, onRetry func()) (ackEntry, error) {
	id := p.GetPacketID()
	attempts := c.options.publishRetries

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.usable(); err != nil {
				return ackEntry{}, err
			}
			if onRetry != nil {
				onRetry()
			}
			c.metrics.publishRetry(p.Type())
		}

		if err := c.send(p); err != nil {
			return ackEntry{}, err
		}

		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		ack, err := c.acks.wait(ctx, expect, id)
		cancel()

		if err == nil {
			c.metrics.ackWait(expect, time.Since(start))
			return ack, nil
		}

		c.logger.Warn("acknowledgment timeout", LogFields{
			LogFieldPacketType: expect.String(),
			LogFieldPacketID:   id,
			LogFieldAttempt:    attempt,
		})
	}

	return ackEntry{}, &AckTimeoutError{Expected: expect, PacketID: id, Attempts: attempts}
}

// SetEventHandler replaces the lifecycle event handler.
func (c *Client) SetEventHandler(handler EventHandler) {
	c.mu.Lock()
	c.onEvent = handler
	c.mu.Unlock()
}

// SetKeepAliveInterval replaces the idle interval before a ping.
func (c *Client) SetKeepAliveInterval(d time.Duration) error {
	if d <= 0 {
		return ErrNilArgument
	}

	c.mu.Lock()
	c.keepAlive.setInterval(d, time.Now())
	c.mu.Unlock()
	return nil
}

// StopReader stops the reader goroutine and leaves the timer running.
func (c *Client) StopReader() {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run != nil {
		run.cancelReader()
	}
}

// Disconnect sends DISCONNECT and closes the transport without stopping
// the client goroutines. The client stays idle until Start or a new
// connection.
func (c *Client) Disconnect() error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.sendDisconnect()
	c.dropConn(nil)

	c.mu.Lock()
	if c.state != StateDisconnect {
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()

	return nil
}

// Control dispatches an operation by command code.
func (c *Client) Control(cmd Command, arg any) (any, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	switch cmd {
	case CommandEventCB:
		switch h := arg.(type) {
		case EventHandler:
			c.SetEventHandler(h)
		case func(*Client, Event):
			c.SetEventHandler(h)
		case nil:
			c.SetEventHandler(nil)
		default:
			return nil, badArgument(cmd, arg)
		}
		return nil, nil

	case CommandSubscriptionCB:
		var sub Subscription
		switch s := arg.(type) {
		case Subscription:
			sub = s
		case *Subscription:
			if s == nil {
				return nil, ErrNilArgument
			}
			sub = *s
		default:
			return nil, badArgument(cmd, arg)
		}
		if err := ValidateTopicFilter(sub.Filter); err != nil {
			return nil, err
		}
		return c.subs.Add(sub)

	case CommandSetKeepAlive:
		d, ok := arg.(time.Duration)
		if !ok {
			return nil, badArgument(cmd, arg)
		}
		return nil, c.SetKeepAliveInterval(d)

	case CommandGetState:
		return c.State(), nil

	case CommandStopReader:
		c.StopReader()
		return nil, nil

	case CommandDisconnect:
		return nil, c.Disconnect()

	default:
		return nil, fmt.Errorf("%w: unknown command %d", ErrFailed, cmd)
	}
}

func badArgument(cmd Command, arg any) error {
	return fmt.Errorf("%w: %s does not accept %T", ErrNilArgument, cmd, arg)
}

// emit sends an event to the event handler.
func (c *Client) emit(ev Event) {
	c.mu.Lock()
	handler := c.onEvent
	c.mu.Unlock()

	if handler != nil {
		handler(c, ev)
	}
}

// setStateLocked changes the state. mu must be held.
func (c *Client) setStateLocked(s ClientState) {
	if c.state == s {
		return
	}

	c.logger.Debug("state change", LogFields{
		LogFieldState: s.String(),
		"previous":    c.state.String(),
	})

	c.state = s
	c.metrics.state(s)
}
