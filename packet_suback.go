package umqtt

import (
	"bytes"
	"fmt"
	"io"
)

// ErrInvalidSubackCode is returned when a SUBACK carries an undefined return code.
var ErrInvalidSubackCode = fmt.Errorf("%w: invalid SUBACK return code", ErrDecode)

// SubackPacket represents an MQTT SUBACK packet.
type SubackPacket struct {
	PacketID    uint16
	ReturnCodes []SubackReturnCode
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType { return PacketSUBACK }

// GetPacketID returns the packet identifier.
func (p *SubackPacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubackPacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	for _, rc := range p.ReturnCodes {
		buf.WriteByte(byte(rc))
	}

	header := FixedHeader{
		PacketType:      PacketSUBACK,
		RemainingLength: uint32(buf.Len()),
	}

	total, err := header.Encode(w)
	if err != nil {
		return total, err
	}

	n, err := w.Write(buf.Bytes())
	return total + n, err
}

// Decode reads the packet from the reader.
// The number of return codes is the remaining length minus the packet identifier.
func (p *SubackPacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBACK {
		return 0, ErrInvalidPacketType
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
	}
	if header.RemainingLength <= 2 {
		return 0, ErrMalformedPacket
	}

	id, totalRead, err := decodeUint16(r)
	if err != nil {
		return totalRead, err
	}
	p.PacketID = id

	codes := make([]byte, header.RemainingLength-2)
	n, err := io.ReadFull(r, codes)
	totalRead += n
	if err != nil {
		return totalRead, err
	}

	p.ReturnCodes = make([]SubackReturnCode, len(codes))
	for i, c := range codes {
		rc := SubackReturnCode(c)
		if !rc.Valid() {
			return totalRead, ErrInvalidSubackCode
		}
		p.ReturnCodes[i] = rc
	}

	return totalRead, nil
}

// Validate validates the packet contents.
func (p *SubackPacket) Validate() error {
	if p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	if len(p.ReturnCodes) == 0 {
		return ErrNoTopicFilters
	}
	for _, rc := range p.ReturnCodes {
		if !rc.Valid() {
			return fmt.Errorf("%w: SUBACK return code 0x%02x", ErrEncode, byte(rc))
		}
	}
	return nil
}
