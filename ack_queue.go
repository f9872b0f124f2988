package umqtt

import "context"

// DefaultAckQueueSize is the acknowledgment queue depth used when none is configured.
const DefaultAckQueueSize = 4

// ackEntry is one acknowledgment observed by the reader.
type ackEntry struct {
	Type     PacketType
	PacketID uint16
	// Codes carries SUBACK return codes.
	Codes []SubackReturnCode
}

// ackQueue is a bounded FIFO between the reader and blocked callers.
type ackQueue struct {
	ch chan ackEntry
}

func newAckQueue(size int) *ackQueue {
	if size <= 0 {
		size = DefaultAckQueueSize
	}
	return &ackQueue{ch: make(chan ackEntry, size)}
}

// push enqueues e without blocking and reports whether it was accepted.
func (q *ackQueue) push(e ackEntry) bool {
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

// wait returns the first entry matching t and id. Entries that do not match
// are discarded. It gives up when ctx ends.
func (q *ackQueue) wait(ctx context.Context, t PacketType, id uint16) (ackEntry, error) {
	for {
		select {
		case <-ctx.Done():
			return ackEntry{}, ctx.Err()
		case e := <-q.ch:
			if e.Type == t && e.PacketID == id {
				return e, nil
			}
		}
	}
}

// drain discards every queued entry.
func (q *ackQueue) drain() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
