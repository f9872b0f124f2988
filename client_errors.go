package umqtt

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client - check with errors.Is().
var (
	// ErrFailed is a generic failure.
	ErrFailed = errors.New("operation failed")

	// ErrMemFull is returned when a bounded table or queue has no room left.
	ErrMemFull = errors.New("no capacity left")

	// ErrTimeout is returned when an operation does not complete in time.
	ErrTimeout = errors.New("operation timed out")

	// ErrEncode is returned when a packet cannot be encoded.
	ErrEncode = errors.New("encode error")

	// ErrDecode is returned when inbound bytes do not form a valid packet.
	ErrDecode = errors.New("decode error")

	// ErrSendFailed is returned when the transport rejects a write.
	ErrSendFailed = errors.New("send failed")

	// ErrNilArgument is returned when a required argument is missing.
	ErrNilArgument = errors.New("required argument is nil or empty")

	// ErrBufferTooShort is returned when a packet does not fit the buffer.
	ErrBufferTooShort = errors.New("buffer too short")

	// ErrReadError is returned when an unexpected packet arrives.
	ErrReadError = errors.New("read error")

	// ErrReadFailed is returned when the transport read fails.
	ErrReadFailed = errors.New("read failed")

	// ErrReadTimeout is returned when no data or acknowledgment arrives in time.
	ErrReadTimeout = errors.New("read timeout")

	// ErrFinAck is returned when the peer closes the stream.
	ErrFinAck = errors.New("peer closed connection")

	// ErrReconnectFailed is returned once the reconnect budget is exhausted.
	ErrReconnectFailed = errors.New("reconnect failed")

	// ErrSockConnectFailed is returned when the transport cannot be dialed.
	ErrSockConnectFailed = errors.New("socket connect failed")

	// ErrDisconnected is returned when the client has no usable connection.
	ErrDisconnected = errors.New("disconnected")
)

// Façade errors.
var (
	// ErrClientClosed is returned when an operation is attempted on a deleted client.
	ErrClientClosed = errors.New("client closed")

	// ErrAlreadySubscribed is returned when subscribing to a filter already in the table.
	ErrAlreadySubscribed = fmt.Errorf("%w: topic filter already subscribed", ErrFailed)

	// ErrNotSubscribed is returned when unsubscribing from an unknown filter.
	ErrNotSubscribed = fmt.Errorf("%w: topic filter not subscribed", ErrFailed)

	// ErrSubscribeRefused is returned when the broker answers SUBACK with 0x80.
	ErrSubscribeRefused = fmt.Errorf("%w: subscription refused by broker", ErrFailed)
)

// ConnectError contains details about a refused CONNECT.
// Extract with errors.As().
type ConnectError struct {
	ReturnCode ConnectReturnCode
}

func (e *ConnectError) Error() string {
	return "connect refused: " + e.ReturnCode.String()
}

func (e *ConnectError) Unwrap() error { return ErrFailed }

// NewConnectError creates a new ConnectError from a CONNACK return code.
func NewConnectError(code ConnectReturnCode) *ConnectError {
	return &ConnectError{ReturnCode: code}
}

// AckTimeoutError reports which acknowledgment never arrived.
// Extract with errors.As().
type AckTimeoutError struct {
	Expected PacketType
	PacketID uint16
	Attempts int
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("no %s for packet %d after %d attempts", e.Expected, e.PacketID, e.Attempts)
}

func (e *AckTimeoutError) Unwrap() error { return ErrReadTimeout }
