package umqtt

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:  "empty string",
			input: "",
		},
		{
			name:  "simple ASCII",
			input: "hello",
		},
		{
			name:  "UTF-8 characters",
			input: "temp/комната/🌡",
		},
		{
			name:  "max length string",
			input: strings.Repeat("a", 65535),
		},
		{
			name:    "string too long",
			input:   strings.Repeat("a", 65536),
			wantErr: ErrStringTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			n, err := encodeString(&buf, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrEncode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 2+len(tt.input), n)

			decoded, n2, err := decodeString(&buf)
			require.NoError(t, err)
			assert.Equal(t, n, n2)
			assert.Equal(t, tt.input, decoded)
		})
	}
}

func TestEncodeStringLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	_, err := encodeString(&buf, "MQTT")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x04, 'M', 'Q', 'T', 'T'}, buf.Bytes())
}

func TestDecodeStringErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"invalid UTF-8", []byte{0x00, 0x03, 0xFF, 0xFE, 0xFD}, ErrInvalidUTF8},
		{"null character", []byte{0x00, 0x03, 'a', 0x00, 'b'}, ErrStringContainsNull},
		{"truncated length", []byte{0x00}, io.ErrUnexpectedEOF},
		{"truncated body", []byte{0x00, 0x05, 'a', 'b'}, io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeString(bytes.NewReader(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEncodeDecodeBinary(t *testing.T) {
	t.Run("payload", func(t *testing.T) {
		var buf bytes.Buffer
		data := []byte{0x00, 0x01, 0xFF}

		n, err := encodeBinary(&buf, data)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		decoded, n2, err := decodeBinary(&buf)
		require.NoError(t, err)
		assert.Equal(t, 5, n2)
		assert.Equal(t, data, decoded)
	})

	t.Run("empty decodes as nil", func(t *testing.T) {
		decoded, n, err := decodeBinary(bytes.NewReader([]byte{0x00, 0x00}))
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Nil(t, decoded)
	})

	t.Run("too long", func(t *testing.T) {
		_, err := encodeBinary(io.Discard, make([]byte, 65536))
		assert.ErrorIs(t, err, ErrStringTooLong)
	})
}

func TestEncodeDecodeUint16(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x1234, 65535} {
		var buf bytes.Buffer
		n, err := encodeUint16(&buf, v)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		decoded, n2, err := decodeUint16(&buf)
		require.NoError(t, err)
		assert.Equal(t, 2, n2)
		assert.Equal(t, v, decoded)
	}
}

func TestEncodeDecodeVarint(t *testing.T) {
	tests := []struct {
		name    string
		value   uint32
		encoded []byte
	}{
		{"zero", 0, []byte{0x00}},
		{"one byte max", 127, []byte{0x7F}},
		{"two bytes min", 128, []byte{0x80, 0x01}},
		{"two bytes max", 16383, []byte{0xFF, 0x7F}},
		{"three bytes min", 16384, []byte{0x80, 0x80, 0x01}},
		{"three bytes max", 2097151, []byte{0xFF, 0xFF, 0x7F}},
		{"four bytes min", 2097152, []byte{0x80, 0x80, 0x80, 0x01}},
		{"four bytes max", 268435455, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			n, err := encodeVarint(&buf, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.encoded, buf.Bytes())
			assert.Equal(t, len(tt.encoded), n)
			assert.Equal(t, len(tt.encoded), varintSize(tt.value))

			decoded, n2, err := decodeVarint(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.value, decoded)
			assert.Equal(t, n, n2)
		})
	}
}

func TestEncodeVarintTooLarge(t *testing.T) {
	_, err := encodeVarint(io.Discard, 268435456)
	assert.ErrorIs(t, err, ErrVarintTooLarge)
	assert.ErrorIs(t, err, ErrEncode)
}

func TestDecodeVarintMalformed(t *testing.T) {
	t.Run("fifth continuation byte", func(t *testing.T) {
		_, n, err := decodeVarint(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01}))
		assert.ErrorIs(t, err, ErrVarintMalformed)
		assert.ErrorIs(t, err, ErrDecode)
		assert.Equal(t, 4, n)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := decodeVarint(bytes.NewReader([]byte{0x80}))
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestPutVarintShortBuffer(t *testing.T) {
	buf := make([]byte, 1)
	_, err := putVarint(buf, 128)
	assert.ErrorIs(t, err, ErrBufferTooShort)
}

func BenchmarkEncodeVarint(b *testing.B) {
	var buf [maxVarintBytes]byte
	for b.Loop() {
		_, _ = putVarint(buf[:], 268435455)
	}
}

func BenchmarkDecodeVarint(b *testing.B) {
	data := []byte{0xFF, 0xFF, 0xFF, 0x7F}
	r := &bytesReader{}
	for b.Loop() {
		r.data, r.pos = data, 0
		_, _, _ = decodeVarint(r)
	}
}
