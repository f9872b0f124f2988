package umqtt

import (
	"fmt"
	"io"
)

// Packet body errors.
var (
	ErrMalformedPacket  = fmt.Errorf("%w: malformed packet", ErrDecode)
	ErrPacketIDRequired = fmt.Errorf("%w: packet identifier required", ErrEncode)
)

// ackLength is the remaining length of every identifier-only acknowledgment.
const ackLength = 2

// encodeAck encodes an identifier-only packet
// (PUBACK, PUBREC, PUBREL, PUBCOMP, UNSUBACK).
func encodeAck(w io.Writer, packetType PacketType, flags byte, packetID uint16) (int, error) {
	if packetID == 0 {
		return 0, ErrPacketIDRequired
	}

	buf := [4]byte{packFirstByte(packetType, flags), ackLength, byte(packetID >> 8), byte(packetID)}
	return w.Write(buf[:])
}

// decodeAck decodes the body of an identifier-only packet.
func decodeAck(r io.Reader, header FixedHeader, packetType PacketType, flags byte) (uint16, int, error) {
	if header.PacketType != packetType {
		return 0, 0, ErrInvalidPacketType
	}
	if header.Flags != flags {
		return 0, 0, ErrInvalidPacketFlags
	}
	if header.RemainingLength != ackLength {
		return 0, 0, ErrMalformedPacket
	}

	return decodeUint16(r)
}
