package umqtt

import (
	"errors"
	"fmt"
	"io"
)

// Codec errors.
var (
	ErrPacketTooLarge = fmt.Errorf("%w: packet exceeds maximum size", ErrBufferTooShort)
	ErrTrailingBytes  = fmt.Errorf("%w: packet body longer than its fields", ErrDecode)
)

// DefaultMaxTopicFilters is the per-packet SUBSCRIBE/UNSUBSCRIBE limit used when none is configured.
const DefaultMaxTopicFilters = 4

// Codec encodes and decodes packets against caller-owned buffers.
// The zero value uses the standard protocol name and level and no filter limit.
type Codec struct {
	// ProtocolName is written into CONNECT packets that leave it empty.
	ProtocolName string

	// ProtocolLevel is written into CONNECT packets that leave it zero.
	ProtocolLevel byte

	// MaxTopicFilters bounds the entries of one SUBSCRIBE or UNSUBSCRIBE. Zero means no limit.
	MaxTopicFilters int
}

// prepare applies codec-level settings to an outbound packet.
func (c *Codec) prepare(p Packet) (Packet, error) {
	if p == nil {
		return nil, ErrNilArgument
	}

	if c.MaxTopicFilters > 0 && entryCount(p) > c.MaxTopicFilters {
		return nil, ErrTooManyTopicFilters
	}

	if conn, ok := p.(*ConnectPacket); ok && (conn.ProtocolName == "" || conn.ProtocolLevel == 0) {
		cp := *conn
		if cp.ProtocolName == "" {
			cp.ProtocolName = c.ProtocolName
		}
		if cp.ProtocolLevel == 0 {
			cp.ProtocolLevel = c.ProtocolLevel
		}
		return &cp, nil
	}

	return p, nil
}

// Encode writes p into buf and returns the encoded size.
// It fails with ErrBufferTooShort when the packet does not fit.
func (c *Codec) Encode(buf []byte, p Packet) (int, error) {
	p, err := c.prepare(p)
	if err != nil {
		return 0, err
	}

	b := getBytesBuffer()
	defer putBytesBuffer(b)

	if _, err := p.Encode(b); err != nil {
		return 0, err
	}

	if b.Len() > len(buf) {
		return 0, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrBufferTooShort, p.Type(), b.Len(), len(buf))
	}

	return copy(buf, b.Bytes()), nil
}

// Decode parses one packet from the start of buf.
// It returns the packet and the number of bytes it occupied.
func (c *Codec) Decode(buf []byte) (Packet, int, error) {
	header, hn, err := decodeHeaderBytes(buf)
	if err != nil {
		return nil, hn, err
	}

	p, err := newPacket(header.PacketType)
	if err != nil {
		return nil, hn, err
	}

	n, err := decodeBody(buf[hn:], header, p)
	if err != nil {
		return nil, hn + n, err
	}

	return p, hn + n, nil
}

// DecodeInto parses one packet from buf into p.
// It fails with ErrInvalidPacketType when buf holds another packet type.
func (c *Codec) DecodeInto(buf []byte, p Packet) (int, error) {
	if p == nil {
		return 0, ErrNilArgument
	}

	header, hn, err := decodeHeaderBytes(buf)
	if err != nil {
		return hn, err
	}

	if header.PacketType != p.Type() {
		return hn, fmt.Errorf("%w: want %s, got %s", ErrInvalidPacketType, p.Type(), header.PacketType)
	}

	n, err := decodeBody(buf[hn:], header, p)
	return hn + n, err
}

// decodeHeaderBytes reads a fixed header from buf and checks that the body fits.
func decodeHeaderBytes(buf []byte) (FixedHeader, int, error) {
	var header FixedHeader

	r := getBytesReader(buf)
	n, err := header.Decode(r)
	putBytesReader(r)

	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return header, n, ErrBufferTooShort
		}
		return header, n, err
	}

	if uint64(header.RemainingLength) > uint64(len(buf)-n) {
		return header, n, fmt.Errorf("%w: remaining length %d exceeds %d available bytes",
			ErrBufferTooShort, header.RemainingLength, len(buf)-n)
	}

	return header, n, nil
}

// decodeBody decodes exactly header.RemainingLength bytes of body into p.
func decodeBody(body []byte, header FixedHeader, p Packet) (int, error) {
	r := getBytesReader(body[:header.RemainingLength])
	defer putBytesReader(r)

	n, err := p.Decode(r, header)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, ErrMalformedPacket
		}
		return n, err
	}

	if n != int(header.RemainingLength) {
		return n, ErrTrailingBytes
	}

	return n, nil
}

// DefaultMaxPacketSize caps the remaining length ReadPacket accepts when
// the caller passes no limit.
const DefaultMaxPacketSize = 1 << 20

// ReadPacket reads a complete MQTT packet from the reader.
// Packets whose remaining length exceeds maxSize return ErrPacketTooLarge;
// a maxSize of 0 means DefaultMaxPacketSize.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var header FixedHeader
	n, err := header.Decode(r)
	if err != nil {
		return nil, n, err
	}

	if maxSize == 0 {
		maxSize = DefaultMaxPacketSize
	}
	if header.RemainingLength > maxSize {
		return nil, n, ErrPacketTooLarge
	}

	remaining := make([]byte, header.RemainingLength)
	if header.RemainingLength > 0 {
		rn, err := io.ReadFull(r, remaining)
		n += rn
		if err != nil {
			return nil, n, err
		}
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, n, err
	}

	if _, err := decodeBody(remaining, header, packet); err != nil {
		return nil, n, err
	}

	return packet, n, nil
}

// readPacketInto reads one packet from r using buf as scratch space.
// A packet larger than buf is drained from r in buf-sized chunks and
// reported as ErrBufferTooShort so the stream stays aligned. A body that
// fails to decode is consumed whole and reported as ErrDecode; a malformed
// fixed header is ErrReadFailed.
func readPacketInto(r io.Reader, buf []byte) (Packet, int, error) {
	var header FixedHeader
	hn, err := header.Decode(r)
	if err != nil {
		if errors.Is(err, ErrDecode) {
			// The boundary of the next packet is unknown.
			return nil, hn, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		return nil, hn, err
	}

	total := header.Size() + int(header.RemainingLength)
	if total > len(buf) {
		n, err := discardN(r, int64(header.RemainingLength), buf)
		if err != nil {
			return nil, hn + int(n), err
		}
		return nil, hn + int(n), fmt.Errorf("%w: %s of %d bytes, buffer is %d",
			ErrBufferTooShort, header.PacketType, total, len(buf))
	}

	body := buf[:header.RemainingLength]
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, hn, err
	}

	packet, err := newPacket(header.PacketType)
	if err != nil {
		return nil, total, err
	}

	if _, err := decodeBody(body, header, packet); err != nil {
		return nil, total, err
	}

	return packet, total, nil
}

// discardN reads and drops n bytes from r through buf.
func discardN(r io.Reader, n int64, buf []byte) (int64, error) {
	var done int64
	for done < n {
		chunk := buf
		if rest := n - done; rest < int64(len(chunk)) {
			chunk = chunk[:rest]
		}
		m, err := io.ReadFull(r, chunk)
		done += int64(m)
		if err != nil {
			return done, err
		}
	}
	return done, nil
}

// WritePacket writes a complete MQTT packet to the writer.
// If maxSize is greater than 0, packets larger than maxSize will return ErrPacketTooLarge.
func WritePacket(w io.Writer, packet Packet, maxSize uint32) (int, error) {
	if packet == nil {
		return 0, ErrNilArgument
	}

	if err := packet.Validate(); err != nil {
		return 0, err
	}

	buf := getBytesBuffer()
	defer putBytesBuffer(buf)

	n, err := packet.Encode(buf)
	if err != nil {
		return 0, err
	}

	if maxSize > 0 && uint32(n) > maxSize {
		return 0, ErrPacketTooLarge
	}

	return w.Write(buf.Bytes())
}
