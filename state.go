package umqtt

// ClientState is the connection state of a Client.
type ClientState int

const (
	// StateIdle means the client is not started.
	StateIdle ClientState = iota
	// StateLinking means a CONNECT was sent and CONNACK is pending.
	StateLinking
	// StateLinked means the broker accepted the connection.
	StateLinked
	// StateUnlink means the keepalive expired and the link must be torn down.
	StateUnlink
	// StateUnlinkLinking means the link is down and the timer is reconnecting.
	StateUnlinkLinking
	// StateDisconnect is terminal: the broker refused the client or the reconnect budget ran out.
	StateDisconnect
)

var clientStateNames = [...]string{
	StateIdle:          "idle",
	StateLinking:       "linking",
	StateLinked:        "linked",
	StateUnlink:        "unlink",
	StateUnlinkLinking: "unlink_linking",
	StateDisconnect:    "disconnect",
}

func (s ClientState) String() string {
	if s < 0 || int(s) >= len(clientStateNames) {
		return "unknown"
	}
	return clientStateNames[s]
}
