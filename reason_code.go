package umqtt

// ConnectReturnCode is the result carried by a CONNACK packet.
type ConnectReturnCode byte

// CONNACK return codes defined by MQTT 3.1.1.
const (
	ConnectAccepted                   ConnectReturnCode = 0x00
	ConnectRefusedProtocolVersion     ConnectReturnCode = 0x01
	ConnectRefusedIdentifierRejected  ConnectReturnCode = 0x02
	ConnectRefusedServerUnavailable   ConnectReturnCode = 0x03
	ConnectRefusedBadUsernamePassword ConnectReturnCode = 0x04
	ConnectRefusedNotAuthorized       ConnectReturnCode = 0x05
)

var connectReturnCodeNames = map[ConnectReturnCode]string{
	ConnectAccepted:                   "connection accepted",
	ConnectRefusedProtocolVersion:     "unacceptable protocol version",
	ConnectRefusedIdentifierRejected:  "identifier rejected",
	ConnectRefusedServerUnavailable:   "server unavailable",
	ConnectRefusedBadUsernamePassword: "bad user name or password",
	ConnectRefusedNotAuthorized:       "not authorized",
}

// String returns a human-readable description of the return code.
func (c ConnectReturnCode) String() string {
	if name, ok := connectReturnCodeNames[c]; ok {
		return name
	}
	return "unknown return code"
}

// Accepted reports whether the broker accepted the connection.
func (c ConnectReturnCode) Accepted() bool {
	return c == ConnectAccepted
}

// SubackReturnCode is a per-filter result in a SUBACK packet.
type SubackReturnCode byte

// SUBACK return codes.
const (
	SubackGrantedQoS0 SubackReturnCode = 0x00
	SubackGrantedQoS1 SubackReturnCode = 0x01
	SubackGrantedQoS2 SubackReturnCode = 0x02
	SubackFailure     SubackReturnCode = 0x80
)

// Valid reports whether the code is defined by MQTT 3.1.1.
func (c SubackReturnCode) Valid() bool {
	return c <= SubackGrantedQoS2 || c == SubackFailure
}

// Failed reports whether the broker refused the subscription.
func (c SubackReturnCode) Failed() bool {
	return c == SubackFailure
}
