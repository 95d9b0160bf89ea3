package services

import (
	"sync"

	"github.com/google/uuid"
)

const (
	TopicFiles = "files"
	TopicUsers = "users"
)

// Event announces that stored state under a topic changed. OwnerID is set
// for file events so subscribers can ignore other owners' churn.
type Event struct {
	Topic   string
	OwnerID string
}

// EventBus is the in-process fan-out feeding live subscriptions. Publish
// never blocks: a subscriber that is not draining its channel misses the
// nudge, which is fine because every emission triggers a fresh query.
type EventBus struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan Event // topic -> subscriber id -> channel
}

func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string]map[string]chan Event),
	}
}

// Subscribe registers for a topic and returns the subscriber id and the
// event channel. The caller must Unsubscribe when done.
func (b *EventBus) Subscribe(topic string) (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan Event, 16)

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[string]chan Event)
	}
	b.subs[topic][id] = ch

	return id, ch
}

func (b *EventBus) Unsubscribe(topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[topic][id]; ok {
		delete(b.subs[topic], id)
		close(ch)
	}
}

func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.Topic] {
		select {
		case ch <- event:
		default:
		}
	}
}
