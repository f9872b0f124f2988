package umqtt

import "sync"

// DefaultMaxSubscriptions is the subscription table capacity used when none is configured.
const DefaultMaxSubscriptions = 4

// SubscriptionTable is an ordered, bounded set of subscriptions keyed by exact filter.
type SubscriptionTable struct {
	mu      sync.RWMutex
	entries []Subscription
	max     int
}

// NewSubscriptionTable creates a table holding at most max entries.
// A max of zero or less uses DefaultMaxSubscriptions.
func NewSubscriptionTable(max int) *SubscriptionTable {
	if max <= 0 {
		max = DefaultMaxSubscriptions
	}
	return &SubscriptionTable{
		entries: make([]Subscription, 0, max),
		max:     max,
	}
}

// Add inserts sub at the end of the table.
// Adding a filter that is already present is a no-op and returns false.
func (t *SubscriptionTable) Add(sub Subscription) (bool, error) {
	if sub.Filter == "" {
		return false, ErrNilArgument
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexLocked(sub.Filter) >= 0 {
		return false, nil
	}

	if len(t.entries) >= t.max {
		return false, ErrMemFull
	}

	t.entries = append(t.entries, sub)
	return true, nil
}

// Remove deletes the entry with the exact filter and reports whether it existed.
func (t *SubscriptionTable) Remove(filter string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.indexLocked(filter)
	if i < 0 {
		return false
	}

	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return true
}

// Get returns the entry with the exact filter.
func (t *SubscriptionTable) Get(filter string) (Subscription, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := t.indexLocked(filter)
	if i < 0 {
		return Subscription{}, false
	}
	return t.entries[i], true
}

// Contains reports whether the exact filter is registered.
func (t *SubscriptionTable) Contains(filter string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.indexLocked(filter) >= 0
}

// Entries returns a copy of all entries in insertion order.
func (t *SubscriptionTable) Entries() []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Subscription, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *SubscriptionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Cap returns the table capacity.
func (t *SubscriptionTable) Cap() int {
	return t.max
}

// Clear removes all entries.
func (t *SubscriptionTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	clear(t.entries)
	t.entries = t.entries[:0]
}

// Dispatch invokes the handler of every entry whose filter matches msg.Topic,
// in insertion order, and returns the number of matching entries.
// Handlers run without the table lock held.
func (t *SubscriptionTable) Dispatch(msg *Message) int {
	if msg == nil {
		return 0
	}

	t.mu.RLock()
	var handlers []MessageHandler
	matched := 0
	for _, e := range t.entries {
		if TopicMatch(e.Filter, msg.Topic) {
			matched++
			if e.Handler != nil {
				handlers = append(handlers, e.Handler)
			}
		}
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}

	return matched
}

func (t *SubscriptionTable) indexLocked(filter string) int {
	for i := range t.entries {
		if t.entries[i].Filter == filter {
			return i
		}
	}
	return -1
}
