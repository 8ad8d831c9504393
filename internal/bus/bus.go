// Package bus fans daemon events out to in-process subscribers.
package bus

import (
	"strings"
	"sync"
	"time"
)

// DropFunc is called with the event kind whenever a subscriber's buffer is
// full and the event is discarded for it.
type DropFunc func(kind string)

// Option configures a Bus.
type Option func(*Bus)

// WithDropHook installs fn as the overflow callback.
func WithDropHook(fn DropFunc) Option {
	return func(b *Bus) { b.onDrop = fn }
}

// Bus delivers each event to every subscriber whose namespace prefixes the
// event kind. Delivery never blocks the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	onDrop DropFunc
}

type subscriber struct {
	prefix string
	ch     chan Event
}

func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[*subscriber]struct{})}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers evt. Subscribers that cannot keep up lose the event.
func (b *Bus) Publish(evt Event) {
	var dropped int
	b.mu.RLock()
	for s := range b.subs {
		if !strings.HasPrefix(evt.Kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			dropped++
		}
	}
	b.mu.RUnlock()

	if b.onDrop != nil {
		for ; dropped > 0; dropped-- {
			b.onDrop(evt.Kind)
		}
	}
}

// Emit publishes kind with the current time. A nil Bus ignores it.
func (b *Bus) Emit(kind string, payload any) {
	if b == nil {
		return
	}
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe registers a buffered receiver for kinds starting with namespace.
// An empty namespace matches everything. The returned cancel func may be
// called more than once.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	s := &subscriber{prefix: namespace, ch: make(chan Event, bufSize)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
