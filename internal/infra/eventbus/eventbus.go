// Package eventbus is an in-process publish/subscribe bus. Chat turns are
// published here once settled; the usage recorder persists them off the
// request path.
//
// Publish never blocks: an event is dropped for a subscriber whose buffer is
// full. There is no persistence; a restart loses buffered events.
package eventbus

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

// Event is a single published message.
type Event struct {
	Topic   string
	Payload any
}

type EventBus interface {
	Publish(topic string, payload any)
	Subscribe(topic string) <-chan Event
}

const defaultBufferSize = 100

// Bus is the in-memory EventBus.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	closed      bool
	dropped     atomic.Uint64
	logger      *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]chan Event),
		logger:      logging.OrNop(logger),
	}
}

// Subscribe returns a buffered channel receiving every event on topic. The
// channel is closed by Close.
func (b *Bus) Subscribe(topic string) <-chan Event {
	ch := make(chan Event, defaultBufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber buffer full", zap.String("topic", topic))
		}
	}
}

// Dropped is the number of events discarded because a buffer was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = nil
}
