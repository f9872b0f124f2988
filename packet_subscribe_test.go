package umqtt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePacketEncodeDecode(t *testing.T) {
	tests := []struct {
		name   string
		packet SubscribePacket
	}{
		{
			name: "single filter",
			packet: SubscribePacket{
				PacketID:      1,
				Subscriptions: []Subscription{{Filter: "a/b", QoS: 1}},
			},
		},
		{
			name: "multiple filters",
			packet: SubscribePacket{
				PacketID: 300,
				Subscriptions: []Subscription{
					{Filter: "sensors/+/temp", QoS: 0},
					{Filter: "alerts/#", QoS: 2},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			_, err := tt.packet.Encode(&buf)
			require.NoError(t, err)
			assert.Equal(t, byte(0x82), buf.Bytes()[0])

			var header FixedHeader
			_, err = header.Decode(&buf)
			require.NoError(t, err)

			var decoded SubscribePacket
			_, err = decoded.Decode(&buf, header)
			require.NoError(t, err)
			assert.Equal(t, tt.packet, decoded)
		})
	}
}

func TestSubscribePacketHandlerNotEncoded(t *testing.T) {
	called := false
	p := &SubscribePacket{
		PacketID:      2,
		Subscriptions: []Subscription{{Filter: "t", QoS: 1, Handler: func(*Message) { called = true }}},
	}

	var buf bytes.Buffer
	_, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x06, 0x00, 0x02, 0x00, 0x01, 't', 0x01}, buf.Bytes())
	assert.False(t, called)
}

func TestSubscribePacketValidate(t *testing.T) {
	tests := []struct {
		name   string
		packet SubscribePacket
		err    error
	}{
		{"valid", SubscribePacket{PacketID: 1, Subscriptions: []Subscription{{Filter: "a"}}}, nil},
		{"no packet id", SubscribePacket{Subscriptions: []Subscription{{Filter: "a"}}}, ErrPacketIDRequired},
		{"no filters", SubscribePacket{PacketID: 1}, ErrNoTopicFilters},
		{"empty filter", SubscribePacket{PacketID: 1, Subscriptions: []Subscription{{Filter: ""}}}, ErrEmptySubscribeFilter},
		{"qos 3", SubscribePacket{PacketID: 1, Subscriptions: []Subscription{{Filter: "a", QoS: 3}}}, ErrInvalidQoS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.packet.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestSubscribePacketDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		header FixedHeader
		body   []byte
		err    error
	}{
		{"wrong flags", FixedHeader{PacketType: PacketSUBSCRIBE, RemainingLength: 6}, []byte{0, 1, 0, 1, 'a', 0}, ErrInvalidPacketFlags},
		{"requested qos 3", FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02, RemainingLength: 6}, []byte{0, 1, 0, 1, 'a', 3}, ErrInvalidSubscribeQoS},
		{"no filters", FixedHeader{PacketType: PacketSUBSCRIBE, Flags: 0x02, RemainingLength: 2}, []byte{0, 1}, ErrMalformedPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p SubscribePacket
			_, err := p.Decode(bytes.NewReader(tt.body), tt.header)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUnsubscribePacketEncodeDecode(t *testing.T) {
	p := UnsubscribePacket{PacketID: 9, TopicFilters: []string{"a/b", "c/#"}}

	var buf bytes.Buffer
	_, err := p.Encode(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0xA2), buf.Bytes()[0])

	var header FixedHeader
	_, err = header.Decode(&buf)
	require.NoError(t, err)

	var decoded UnsubscribePacket
	_, err = decoded.Decode(&buf, header)
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.Equal(t, PacketUNSUBSCRIBE, decoded.Type())
}

func TestUnsubscribePacketValidate(t *testing.T) {
	tests := []struct {
		name   string
		packet UnsubscribePacket
		err    error
	}{
		{"valid", UnsubscribePacket{PacketID: 1, TopicFilters: []string{"a"}}, nil},
		{"no packet id", UnsubscribePacket{TopicFilters: []string{"a"}}, ErrPacketIDRequired},
		{"no filters", UnsubscribePacket{PacketID: 1}, ErrNoTopicFilters},
		{"empty filter", UnsubscribePacket{PacketID: 1, TopicFilters: []string{""}}, ErrEmptySubscribeFilter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.packet.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUnsubscribePacketDecodeNoFilters(t *testing.T) {
	var p UnsubscribePacket
	_, err := p.Decode(bytes.NewReader([]byte{0, 1}), FixedHeader{PacketType: PacketUNSUBSCRIBE, Flags: 0x02, RemainingLength: 2})
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestEntryCount(t *testing.T) {
	assert.Equal(t, 2, entryCount(&SubscribePacket{Subscriptions: make([]Subscription, 2)}))
	assert.Equal(t, 3, entryCount(&UnsubscribePacket{TopicFilters: []string{"a", "b", "c"}}))
	assert.Equal(t, 0, entryCount(&PingreqPacket{}))
}
