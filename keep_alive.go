package umqtt

import "time"

// keepAliveAction is what the timer must do after a keepalive check.
type keepAliveAction int

const (
	keepAliveIdle keepAliveAction = iota
	keepAlivePing
	keepAliveExpired
)

// keepAlive holds the uplink bookkeeping of one connection.
// It is not safe for concurrent use; the client mutex guards it.
type keepAlive struct {
	// interval is the idle time after the last inbound packet before a ping.
	interval time.Duration
	// connectKeepAlive is the value announced in CONNECT.
	connectKeepAlive time.Duration
	// sendTimeout is how long a ping may stay unanswered.
	sendTimeout time.Duration
	// max is the number of unanswered pings that ends the link.
	max int

	lastUplink time.Time
	nextUplink time.Time
	lastPing   time.Time
	count      int
}

func newKeepAlive(interval, connectKeepAlive, sendTimeout time.Duration, max int) *keepAlive {
	return &keepAlive{
		interval:         interval,
		connectKeepAlive: connectKeepAlive,
		sendTimeout:      sendTimeout,
		max:              max,
	}
}

// reset starts a fresh link at now.
func (k *keepAlive) reset(now time.Time) {
	k.lastUplink = now
	k.nextUplink = now.Add(k.interval)
	k.lastPing = now
	k.count = 0
}

// received records an inbound packet.
func (k *keepAlive) received(now time.Time) {
	k.nextUplink = now.Add(k.interval)
	k.count = 0
}

// sent records an outbound packet.
func (k *keepAlive) sent(now time.Time) {
	k.lastUplink = now
}

// pinged records an outbound PINGREQ.
func (k *keepAlive) pinged(now time.Time) {
	k.lastUplink = now
	k.lastPing = now
}

// setInterval replaces the idle interval and rearms the next deadline.
func (k *keepAlive) setInterval(d time.Duration, now time.Time) {
	k.interval = d
	k.nextUplink = now.Add(d)
}

// check decides whether a ping is due or the link is dead.
//
// A ping is due when nothing arrived for interval and nothing was sent since,
// or when half of the CONNECT keepalive passed since the last ping. Once a
// send stays unanswered for sendTimeout the miss counter grows; reaching max
// expires the link, otherwise another ping goes out.
func (k *keepAlive) check(now time.Time) keepAliveAction {
	idle := !now.Before(k.nextUplink) && k.nextUplink.After(k.lastUplink)
	halfKeepAlive := k.connectKeepAlive > 0 && k.lastPing.Add(k.connectKeepAlive/2).Before(now)

	if idle || halfKeepAlive {
		return keepAlivePing
	}

	if !k.lastUplink.Before(k.nextUplink) && k.lastUplink.Add(k.sendTimeout).Before(now) {
		k.count++
		if k.count >= k.max {
			return keepAliveExpired
		}
		return keepAlivePing
	}

	return keepAliveIdle
}
