package umqtt

import (
	"sync"
	"time"
)

// QoS2 inbound defaults.
const (
	DefaultQoS2QueueSize  = 1
	DefaultPubrecRetries  = 3
	DefaultPubrecInterval = 2 * time.Second
)

// PacketIDManager hands out packet identifiers 1..65535 in sequence.
type PacketIDManager struct {
	mu   sync.Mutex
	last uint16
}

// NewPacketIDManager creates a new packet ID manager.
func NewPacketIDManager() *PacketIDManager {
	return &PacketIDManager{}
}

// Next returns the next packet ID. It wraps from 65535 to 1 and never returns 0.
func (m *PacketIDManager) Next() uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last++
	if m.last == 0 {
		m.last = 1
	}
	return m.last
}

// pubrecSlot tracks PUBREC retransmission for one inbound QoS 2 packet.
// retries == -1 marks a free slot.
type pubrecSlot struct {
	packetID uint16
	retries  int
	deadline time.Time
}

func (s *pubrecSlot) free() bool { return s.retries < 0 }

func (s *pubrecSlot) release() {
	*s = pubrecSlot{retries: -1}
}

// QoS2Tracker holds inbound QoS 2 messages between PUBREC and PUBREL.
//
// The number of in-flight messages is bounded by the slot count. A message
// whose PUBREC retries run out before PUBREL arrives is dropped undelivered.
type QoS2Tracker struct {
	mu         sync.Mutex
	slots      []pubrecSlot
	pending    map[uint16]*Message
	maxRetries int
	interval   time.Duration
}

// NewQoS2Tracker creates a tracker with size slots, each retrying PUBREC
// maxRetries times every interval.
func NewQoS2Tracker(size, maxRetries int, interval time.Duration) *QoS2Tracker {
	if size <= 0 {
		size = DefaultQoS2QueueSize
	}
	if maxRetries <= 0 {
		maxRetries = DefaultPubrecRetries
	}
	if interval <= 0 {
		interval = DefaultPubrecInterval
	}

	t := &QoS2Tracker{
		slots:      make([]pubrecSlot, size),
		pending:    make(map[uint16]*Message, size),
		maxRetries: maxRetries,
		interval:   interval,
	}
	for i := range t.slots {
		t.slots[i].release()
	}
	return t
}

// Track stores msg under id until Release.
// A repeated id is kept once. Returns ErrMemFull when every slot is taken.
func (t *QoS2Tracker) Track(id uint16, msg *Message, now time.Time) error {
	if id == 0 || msg == nil {
		return ErrNilArgument
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[id]; ok {
		return nil
	}

	for i := range t.slots {
		s := &t.slots[i]
		if !s.free() {
			continue
		}
		s.packetID = id
		s.retries = t.maxRetries
		s.deadline = now.Add(t.interval)
		t.pending[id] = msg
		return nil
	}

	return ErrMemFull
}

// Contains reports whether id is currently tracked.
func (t *QoS2Tracker) Contains(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.pending[id]
	return ok
}

// RetryCycle advances every slot whose deadline has passed.
// It returns the ids that need a PUBREC resend and the messages dropped
// because their retries ran out.
func (t *QoS2Tracker) RetryCycle(now time.Time) (resend []uint16, dropped []*Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		s := &t.slots[i]
		if s.free() || now.Before(s.deadline) {
			continue
		}

		s.retries--
		if s.retries < 0 {
			if msg, ok := t.pending[s.packetID]; ok {
				dropped = append(dropped, msg)
				delete(t.pending, s.packetID)
			}
			s.release()
			continue
		}

		s.deadline = now.Add(t.interval)
		resend = append(resend, s.packetID)
	}

	return resend, dropped
}

// Release frees the slot for id and returns its message exactly once.
func (t *QoS2Tracker) Release(id uint16) (*Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, ok := t.pending[id]
	if !ok {
		return nil, false
	}
	delete(t.pending, id)

	for i := range t.slots {
		if !t.slots[i].free() && t.slots[i].packetID == id {
			t.slots[i].release()
			break
		}
	}

	return msg, true
}

// Len returns the number of tracked messages.
func (t *QoS2Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.pending)
}

// Clear drops every tracked message and frees all slots.
func (t *QoS2Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.pending)
	for i := range t.slots {
		t.slots[i].release()
	}
}
