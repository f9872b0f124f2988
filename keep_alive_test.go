package umqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestKeepAlive(now time.Time) *keepAlive {
	k := newKeepAlive(30*time.Second, 60*time.Second, 4*time.Second, 3)
	k.reset(now)
	return k
}

func TestKeepAliveIdleLink(t *testing.T) {
	t0 := time.Now()
	k := newTestKeepAlive(t0)

	assert.Equal(t, keepAliveIdle, k.check(t0.Add(10*time.Second)))
	assert.Equal(t, keepAlivePing, k.check(t0.Add(30*time.Second)))
}

func TestKeepAlivePingAnswered(t *testing.T) {
	t0 := time.Now()
	k := newTestKeepAlive(t0)

	k.pinged(t0.Add(30 * time.Second))
	assert.Equal(t, keepAliveIdle, k.check(t0.Add(31*time.Second)), "waiting for PINGRESP")

	k.received(t0.Add(32 * time.Second))
	assert.Equal(t, keepAliveIdle, k.check(t0.Add(40*time.Second)))
	assert.Zero(t, k.count)
}

func TestKeepAliveExpires(t *testing.T) {
	t0 := time.Now()
	k := newTestKeepAlive(t0)

	now := t0.Add(30 * time.Second)
	assert.Equal(t, keepAlivePing, k.check(now))
	k.pinged(now)

	now = now.Add(5 * time.Second)
	assert.Equal(t, keepAlivePing, k.check(now))
	assert.Equal(t, 1, k.count)
	k.pinged(now)

	now = now.Add(5 * time.Second)
	assert.Equal(t, keepAlivePing, k.check(now))
	assert.Equal(t, 2, k.count)
	k.pinged(now)

	now = now.Add(5 * time.Second)
	assert.Equal(t, keepAliveExpired, k.check(now))
	assert.Equal(t, 3, k.count)
}

func TestKeepAliveHalfConnectKeepAlive(t *testing.T) {
	t0 := time.Now()
	k := newTestKeepAlive(t0)

	// steady inbound traffic keeps the idle deadline moving
	for s := 10; s <= 30; s += 10 {
		k.received(t0.Add(time.Duration(s) * time.Second))
	}

	assert.Equal(t, keepAliveIdle, k.check(t0.Add(29*time.Second)))
	assert.Equal(t, keepAlivePing, k.check(t0.Add(31*time.Second)))

	t.Run("disabled with zero keepalive", func(t *testing.T) {
		k := newKeepAlive(30*time.Second, 0, 4*time.Second, 3)
		k.reset(t0)
		k.received(t0.Add(20 * time.Second))
		assert.Equal(t, keepAliveIdle, k.check(t0.Add(45*time.Second)))
	})
}

func TestKeepAliveSentDoesNotResetIdle(t *testing.T) {
	t0 := time.Now()
	k := newTestKeepAlive(t0)

	k.sent(t0.Add(10 * time.Second))
	assert.Equal(t, keepAlivePing, k.check(t0.Add(30*time.Second)))
}

func TestKeepAliveSetInterval(t *testing.T) {
	t0 := time.Now()
	k := newTestKeepAlive(t0)

	k.setInterval(5*time.Second, t0)
	assert.Equal(t, 5*time.Second, k.interval)
	assert.Equal(t, keepAlivePing, k.check(t0.Add(5*time.Second)))
}
