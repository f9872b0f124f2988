package umqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubackPacketEncodeDecode(t *testing.T) {
	p := SubackPacket{
		PacketID:    17,
		ReturnCodes: []SubackReturnCode{SubackGrantedQoS0, SubackGrantedQoS2, SubackFailure},
	}

	var buf bytes.Buffer
	_, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x05, 0x00, 0x11, 0x00, 0x02, 0x80}, buf.Bytes())

	var header FixedHeader
	_, err = header.Decode(&buf)
	require.NoError(t, err)

	var decoded SubackPacket
	_, err = decoded.Decode(&buf, header)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.True(t, decoded.ReturnCodes[2].Failed())
	assert.False(t, decoded.ReturnCodes[1].Failed())
}

func TestSubackPacketDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		header FixedHeader
		body   []byte
		err    error
	}{
		{"no codes", FixedHeader{PacketType: PacketSUBACK, RemainingLength: 2}, []byte{0, 1}, ErrMalformedPacket},
		{"undefined code", FixedHeader{PacketType: PacketSUBACK, RemainingLength: 3}, []byte{0, 1, 0x03}, ErrInvalidSubackCode},
		{"flags", FixedHeader{PacketType: PacketSUBACK, Flags: 0x02, RemainingLength: 3}, []byte{0, 1, 0}, ErrInvalidPacketFlags},
		{"wrong type", FixedHeader{PacketType: PacketUNSUBACK, RemainingLength: 3}, []byte{0, 1, 0}, ErrInvalidPacketType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p SubackPacket
			_, err := p.Decode(bytes.NewReader(tt.body), tt.header)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSubackPacketValidate(t *testing.T) {
	assert.ErrorIs(t, (&SubackPacket{ReturnCodes: []SubackReturnCode{0}}).Validate(), ErrPacketIDRequired)
	assert.ErrorIs(t, (&SubackPacket{PacketID: 1}).Validate(), ErrNoTopicFilters)
	assert.ErrorIs(t, (&SubackPacket{PacketID: 1, ReturnCodes: []SubackReturnCode{0x40}}).Validate(), ErrEncode)
	assert.NoError(t, (&SubackPacket{PacketID: 1, ReturnCodes: []SubackReturnCode{SubackGrantedQoS1}}).Validate())
}
