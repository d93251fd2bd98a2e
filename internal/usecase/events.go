package usecase

import (
	"sync"
	"time"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/metrics"
)

// EventBus fans progress events out to subscribers. Delivery is best effort:
// a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan domain.Event
	next   int
	buffer int
}

// NewEventBus creates an EventBus with a per-subscriber buffer.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &EventBus{subs: make(map[int]chan domain.Event), buffer: buffer}
}

// Subscribe returns a channel of events and a function that ends the subscription.
func (b *EventBus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan domain.Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish never blocks.
func (b *EventBus) Publish(ev domain.Event) {
	if b == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
