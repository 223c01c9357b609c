package events

import (
	"path"
	"sync"
)

// Event is one notification published to subscribers. Type follows the
// dotted convention from the external interface (e.g. "ingest.progress",
// "consolidate.progress", "watch.file_changed"); Params carries the
// type-specific payload.
type Event struct {
	Type   string
	Params map[string]any
}

const subscriberBuffer = 32

// subscription is one client's pattern set and delivery channel.
type subscription struct {
	id       uint64
	patterns []string
	ch       chan Event
}

// Bus fans published events out to every subscriber whose pattern set
// matches the event type. Patterns use path.Match syntax ("ingest.*"
// matches "ingest.progress" and "ingest.complete"). A slow subscriber never
// blocks publishers: events it can't keep up with are dropped for it,
// mirroring the teacher's SSE handler treating the client channel as
// best-effort rather than backpressuring the operation it's watching.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscription)}
}

// Subscribe registers a new subscriber matching any of patterns (an empty
// patterns slice matches every event) and returns its id and receive
// channel. Call Unsubscribe(id) to stop delivery and release the channel.
func (b *Bus) Subscribe(patterns []string) (uint64, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscription{
		id:       id,
		patterns: append([]string(nil), patterns...),
		ch:       make(chan Event, subscriberBuffer),
	}
	b.subs[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// more than once or with an unknown id.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish delivers event to every subscriber whose pattern set matches its
// type. Non-blocking per subscriber: a full channel drops the event for
// that subscriber rather than stalling the publishing goroutine.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.matches(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (s *subscription) matches(eventType string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, p := range s.patterns {
		if ok, err := path.Match(p, eventType); err == nil && ok {
			return true
		}
	}
	return false
}
