package umqtt

// Event is a lifecycle notification delivered to the EventHandler.
type Event int

const (
	// EventLink is emitted when the timer starts a reconnect attempt.
	EventLink Event = iota + 1
	// EventOnline is emitted when CONNACK accepts the connection.
	EventOnline
	// EventOffline is emitted when the keepalive expires and the link is torn down.
	EventOffline
	// EventHeartbeat is emitted for every PINGREQ sent.
	EventHeartbeat
)

func (e Event) String() string {
	switch e {
	case EventLink:
		return "link"
	case EventOnline:
		return "online"
	case EventOffline:
		return "offline"
	case EventHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// EventHandler is called for lifecycle events. It runs on the client's
// goroutines and must not block.
type EventHandler func(c *Client, ev Event)

// MessageHandler receives messages that match a subscription.
type MessageHandler func(msg *Message)

// Command selects the operation performed by Client.Control.
type Command int

const (
	// CommandEventCB installs an EventHandler. arg: EventHandler.
	CommandEventCB Command = iota + 1
	// CommandSubscriptionCB inserts a local subscription without a network round trip. arg: Subscription.
	CommandSubscriptionCB
	// CommandSetKeepAlive replaces the keepalive interval. arg: time.Duration.
	CommandSetKeepAlive
	// CommandGetState returns the current ClientState. arg: ignored.
	CommandGetState
	// CommandStopReader stops the reader goroutine. arg: ignored.
	CommandStopReader
	// CommandDisconnect sends DISCONNECT and closes the transport. arg: ignored.
	CommandDisconnect
)

func (c Command) String() string {
	switch c {
	case CommandEventCB:
		return "event_cb"
	case CommandSubscriptionCB:
		return "subscription_cb"
	case CommandSetKeepAlive:
		return "set_keepalive"
	case CommandGetState:
		return "get_state"
	case CommandStopReader:
		return "stop_reader"
	case CommandDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}
