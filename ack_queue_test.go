package umqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAckQueuePushBounded(t *testing.T) {
	q := newAckQueue(2)

	assert.True(t, q.push(ackEntry{Type: PacketPUBACK, PacketID: 1}))
	assert.True(t, q.push(ackEntry{Type: PacketPUBACK, PacketID: 2}))
	assert.False(t, q.push(ackEntry{Type: PacketPUBACK, PacketID: 3}))

	q.drain()
	assert.True(t, q.push(ackEntry{Type: PacketPUBACK, PacketID: 3}))
}

func TestAckQueueDefaultSize(t *testing.T) {
	q := newAckQueue(0)
	assert.Equal(t, DefaultAckQueueSize, cap(q.ch))
}

func TestAckQueueWait(t *testing.T) {
	t.Run("skips non-matching entries", func(t *testing.T) {
		q := newAckQueue(4)
		q.push(ackEntry{Type: PacketPUBREC, PacketID: 1})
		q.push(ackEntry{Type: PacketPUBACK, PacketID: 2})
		q.push(ackEntry{Type: PacketSUBACK, PacketID: 1, Codes: []SubackReturnCode{SubackFailure}})

		e, err := q.wait(context.Background(), PacketSUBACK, 1)
		require.NoError(t, err)
		assert.Equal(t, []SubackReturnCode{SubackFailure}, e.Codes)
		assert.Empty(t, q.ch)
	})

	t.Run("entry pushed later", func(t *testing.T) {
		q := newAckQueue(1)

		go func() {
			time.Sleep(10 * time.Millisecond)
			q.push(ackEntry{Type: PacketPUBCOMP, PacketID: 9})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		e, err := q.wait(ctx, PacketPUBCOMP, 9)
		require.NoError(t, err)
		assert.Equal(t, uint16(9), e.PacketID)
	})

	t.Run("timeout", func(t *testing.T) {
		q := newAckQueue(1)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := q.wait(ctx, PacketPUBACK, 1)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
