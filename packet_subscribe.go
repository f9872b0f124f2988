package umqtt

import (
	"bytes"
	"fmt"
	"io"
)

// SUBSCRIBE and UNSUBSCRIBE packet errors.
var (
	ErrNoTopicFilters       = fmt.Errorf("%w: at least one topic filter required", ErrEncode)
	ErrTooManyTopicFilters  = fmt.Errorf("%w: too many topic filters in one packet", ErrEncode)
	ErrInvalidSubscribeQoS  = fmt.Errorf("%w: invalid requested QoS", ErrDecode)
	ErrEmptySubscribeFilter = fmt.Errorf("%w: empty topic filter", ErrEncode)
)

// Subscription is a topic filter registration.
// Handler is only used by the subscription table and never travels on the wire.
type Subscription struct {
	Filter  string
	QoS     byte
	Handler MessageHandler
}

// SubscribePacket represents an MQTT SUBSCRIBE packet.
type SubscribePacket struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType { return PacketSUBSCRIBE }

// GetPacketID returns the packet identifier.
func (p *SubscribePacket) GetPacketID() uint16 { return p.PacketID }

// SetPacketID sets the packet identifier.
func (p *SubscribePacket) SetPacketID(id uint16) { p.PacketID = id }

// Encode writes the packet to the writer.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var buf bytes.Buffer

	if _, err := encodeUint16(&buf, p.PacketID); err != nil {
		return 0, err
	}

	for _, sub := range p.Subscriptions {
		if _, err := encodeString(&buf, sub.Filter); err != nil {
			return 0, err
		}
		buf.WriteByte(sub.QoS)
	}

	header := FixedHeader{
		PacketType:      PacketSUBSCRIBE,
		Flags:           flagsReserved,
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
func (p *SubscribePacket) Decode(r io.Reader, header FixedHeader) (int, error) {
	if header.PacketType != PacketSUBSCRIBE {
		return 0, ErrInvalidPacketType
	}
	if err := header.ValidateFlags(); err != nil {
		return 0, err
	}

	var totalRead int

	id, n, err := decodeUint16(r)
	totalRead += n
	if err != nil {
		return totalRead, err
	}
	p.PacketID = id

	p.Subscriptions = nil
	for totalRead < int(header.RemainingLength) {
		var sub Subscription

		sub.Filter, n, err = decodeString(r)
		totalRead += n
		if err != nil {
			return totalRead, err
		}

		var qos [1]byte
		n, err = io.ReadFull(r, qos[:])
		totalRead += n
		if err != nil {
			return totalRead, err
		}
		if qos[0] > 2 {
			return totalRead, ErrInvalidSubscribeQoS
		}
		sub.QoS = qos[0]

		p.Subscriptions = append(p.Subscriptions, sub)
	}

	if len(p.Subscriptions) == 0 {
		return totalRead, ErrMalformedPacket
	}

	return totalRead, nil
}

// Validate validates the packet contents.
func (p *SubscribePacket) Validate() error {
	if p.PacketID == 0 {
		return ErrPacketIDRequired
	}
	if len(p.Subscriptions) == 0 {
		return ErrNoTopicFilters
	}
	for _, sub := range p.Subscriptions {
		if sub.Filter == "" {
			return ErrEmptySubscribeFilter
		}
		if sub.QoS > 2 {
			return ErrInvalidQoS
		}
	}
	return nil
}

// entryCount returns the number of topic filters carried by a SUBSCRIBE or UNSUBSCRIBE packet.
func entryCount(p Packet) int {
	switch pkt := p.(type) {
	case *SubscribePacket:
		return len(pkt.Subscriptions)
	case *UnsubscribePacket:
		return len(pkt.TopicFilters)
	default:
		return 0
	}
}
