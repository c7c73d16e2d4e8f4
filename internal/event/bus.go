// Package event is the in-memory plugin.EventBus the NetSage server wires
// into every plugin. Settings changes and check alerts flow through it.
package event

import (
	"context"
	"sync"

	"github.com/HerbHall/netsage/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.EventBus = (*Bus)(nil)

// Bus fans events out to topic subscribers and wildcard subscribers.
// Publish runs handlers in the caller's goroutine; PublishAsync runs each
// in its own. A panicking handler is logged and isolated either way.
type Bus struct {
	mu       sync.RWMutex
	byTopic  map[string][]subscription
	wildcard []subscription
	nextID   uint64
	logger   *zap.Logger
}

type subscription struct {
	id      uint64
	handler plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		byTopic: make(map[string][]subscription),
		logger:  logger,
	}
}

// snapshot copies the subscriber list for a topic plus the wildcard list,
// so dispatch happens without holding the lock.
func (b *Bus) snapshot(topic string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := make([]subscription, 0, len(b.byTopic[topic])+len(b.wildcard))
	subs = append(subs, b.byTopic[topic]...)
	subs = append(subs, b.wildcard...)
	return subs
}

// Publish delivers event to every matching handler, in order, before
// returning.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, s := range b.snapshot(event.Topic) {
		b.dispatch(ctx, s.handler, event)
	}
	return nil
}

// PublishAsync delivers event with one goroutine per handler and returns
// immediately.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	for _, s := range b.snapshot(event.Topic) {
		go b.dispatch(ctx, s.handler, event)
	}
}

// Subscribe registers handler for one topic and returns its unsubscribe
// function.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.byTopic[topic] = append(b.byTopic[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byTopic[topic] = removeSub(b.byTopic[topic], id)
	}
}

// SubscribeAll registers handler for every topic and returns its
// unsubscribe function.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.wildcard = append(b.wildcard, subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = removeSub(b.wildcard, id)
	}
}

func removeSub(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

func (b *Bus) dispatch(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}
