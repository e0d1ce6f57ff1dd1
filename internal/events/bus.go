package events

import (
	"sync"
	"sync/atomic"

	"github.com/alejandrodnm/tradecore/internal/domain"
)

// Bus is a non-blocking pub/sub broker. Slow subscribers lose events.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	nextID  int
	dropped atomic.Int64
}

type subscriber struct {
	ch    chan domain.Event
	types map[domain.EventType]bool // nil = all
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Subscribe registers a listener for the given event types (all types if none)
// and returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(buffer int, types ...domain.EventType) (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := subscriber{ch: make(chan domain.Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[domain.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(s.ch)
		})
	}
	return s.ch, unsub
}

// Publish fans the event out without blocking the caller.
func (b *Bus) Publish(e domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.types != nil && !s.types[e.Type] {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped is the number of events discarded because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}
