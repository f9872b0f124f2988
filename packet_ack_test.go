package umqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckPacketsEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		packet PacketWithID
		empty  func() PacketWithID
		first  byte
	}{
		{"puback", &PubackPacket{PacketID: 1}, func() PacketWithID { return &PubackPacket{} }, 0x40},
		{"pubrec", &PubrecPacket{PacketID: 0x1234}, func() PacketWithID { return &PubrecPacket{} }, 0x50},
		{"pubrel", &PubrelPacket{PacketID: 0xFFFF}, func() PacketWithID { return &PubrelPacket{} }, 0x62},
		{"pubcomp", &PubcompPacket{PacketID: 42}, func() PacketWithID { return &PubcompPacket{} }, 0x70},
		{"unsuback", &UnsubackPacket{PacketID: 7}, func() PacketWithID { return &UnsubackPacket{} }, 0xB0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			n, err := tt.packet.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			wire := buf.Bytes()
			assert.Equal(t, tt.first, wire[0])
			assert.Equal(t, byte(2), wire[1])

			var header FixedHeader
			_, err = header.Decode(&buf)
			require.NoError(t, err)

			decoded := tt.empty()
			assert.Equal(t, tt.packet.Type(), decoded.Type())

			_, err = decoded.Decode(&buf, header)
			require.NoError(t, err)
			assert.Equal(t, tt.packet.GetPacketID(), decoded.GetPacketID())
		})
	}
}

func TestAckPacketsSetPacketID(t *testing.T) {
	packets := []PacketWithID{
		&PubackPacket{}, &PubrecPacket{}, &PubrelPacket{}, &PubcompPacket{}, &UnsubackPacket{},
	}

	for _, p := range packets {
		t.Run(p.Type().String(), func(t *testing.T) {
			assert.ErrorIs(t, p.Validate(), ErrPacketIDRequired)

			_, err := p.Encode(&bytes.Buffer{})
			assert.ErrorIs(t, err, ErrPacketIDRequired)

			p.SetPacketID(99)
			assert.Equal(t, uint16(99), p.GetPacketID())
			assert.NoError(t, p.Validate())
		})
	}
}

func TestDecodeAckErrors(t *testing.T) {
	tests := []struct {
		name   string
		header FixedHeader
		err    error
	}{
		{"wrong type", FixedHeader{PacketType: PacketPUBREC, RemainingLength: 2}, ErrInvalidPacketType},
		{"wrong flags", FixedHeader{PacketType: PacketPUBACK, Flags: 0x02, RemainingLength: 2}, ErrInvalidPacketFlags},
		{"short length", FixedHeader{PacketType: PacketPUBACK, RemainingLength: 1}, ErrMalformedPacket},
		{"long length", FixedHeader{PacketType: PacketPUBACK, RemainingLength: 3}, ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PubackPacket
			_, err := p.Decode(bytes.NewReader([]byte{0x00, 0x01, 0x00}), tt.header)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("pubrel requires reserved flags", func(t *testing.T) {
		var p PubrelPacket
		_, err := p.Decode(bytes.NewReader([]byte{0x00, 0x01}), FixedHeader{PacketType: PacketPUBREL, RemainingLength: 2})
		assert.ErrorIs(t, err, ErrInvalidPacketFlags)
	})
}

func BenchmarkPubackPacketEncode(b *testing.B) {
	p := &PubackPacket{PacketID: 12345}

	var buf bytes.Buffer
	b.ReportAllocs()
	for b.Loop() {
		buf.Reset()
		_, _ = p.Encode(&buf)
	}
}
