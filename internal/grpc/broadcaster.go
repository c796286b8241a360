package grpc

import (
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 100

type Event struct {
	Topic   string
	Payload any
}

type subscriber struct {
	topic string
	ch    chan Event
}

// Broadcaster fans published messages out to topic subscribers. Slow
// subscribers miss messages instead of blocking the publisher.
type Broadcaster struct {
	subscribers map[uint64]subscriber
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	mu          sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uint64]subscriber),
	}
}

// Subscribe registers for one topic. An empty topic receives everything.
func (b *Broadcaster) Subscribe(topic string) (uint64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[id] = subscriber{topic: topic, ch: ch}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(topic string, msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: msg}
	for _, sub := range b.subscribers {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels, causing streams to exit gracefully
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
