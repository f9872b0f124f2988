package umqtt

import (
	"fmt"
	"io"
)

// CONNACK packet errors.
var (
	ErrInvalidConnackFlags = fmt.Errorf("%w: invalid CONNACK flags", ErrDecode)
)

const connackLength = 2

// ConnackPacket represents an MQTT CONNACK packet.
type ConnackPacket struct {
	// SessionPresent indicates if a session exists from a previous connection.
	SessionPresent bool

	// ReturnCode is the connection result.
	ReturnCode ConnectReturnCode
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType {
	return PacketCONNACK
}

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var flags byte
	if p.SessionPresent {
		flags = 0x01
	}

	buf := [4]byte{packFirstByte(PacketCONNACK, 0), connackLength, flags, byte(p.ReturnCode)}
	return w.Write(buf[:])
}

// Decode reads the packet from the reader.
func (p *ConnackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketCONNACK {
		return 0, ErrInvalidPacketType
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
	}
	if header.RemainingLength != connackLength {
		return 0, ErrMalformedPacket
	}

	var buf [connackLength]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return n, err
	}

	if buf[0]&0xFE != 0 {
		return n, ErrInvalidConnackFlags
	}

	p.SessionPresent = buf[0]&0x01 != 0
	p.ReturnCode = ConnectReturnCode(buf[1])
	return n, nil
}

// Validate validates the packet contents.
func (p *ConnackPacket) Validate() error {
	if p.SessionPresent && p.ReturnCode != ConnectAccepted {
		return fmt.Errorf("%w: session present on refused connection", ErrEncode)
	}
	return nil
}
