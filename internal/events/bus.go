// Package events is the in-process publish/subscribe bus that tells readers
// when a collection changed. Events carry no state; subscribers re-read.
package events

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"subadmin/internal/types"
)

// Handler receives a published event.
type Handler func(ctx context.Context, evt types.Event)

type subscription struct {
	id      string
	handler Handler
}

// Bus delivers events synchronously, in subscription order, on the
// publishing goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[types.Topic][]subscription
	now    func() time.Time
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default().
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[types.Topic][]subscription),
		now:    time.Now,
		logger: logger,
	}
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic types.Topic, handler Handler) func() {
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() { b.Unsubscribe(topic, id) }
}

// SubscribeAll registers handler for every known topic.
func (b *Bus) SubscribeAll(handler Handler) func() {
	unsubs := make([]func(), 0, len(types.AllTopics))
	for _, t := range types.AllTopics {
		unsubs = append(unsubs, b.Subscribe(t, handler))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Unsubscribe removes the subscription with the given id. Unknown ids are ignored.
func (b *Bus) Unsubscribe(topic types.Topic, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// Copy so an in-flight Publish keeps iterating its own snapshot.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// SubscriberCount returns the number of handlers registered for topic.
func (b *Bus) SubscriberCount(topic types.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Publish stamps evt and invokes every handler registered for its topic.
// A panicking handler is logged and skipped.
func (b *Bus) Publish(ctx context.Context, evt types.Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = b.now().UTC()
	}

	b.mu.RLock()
	subs := b.subs[evt.Topic]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, evt)
	}
}

// Emit is shorthand for publishing a bare topic notification.
func (b *Bus) Emit(ctx context.Context, topic types.Topic, action, entityID string) {
	b.Publish(ctx, types.Event{Topic: topic, Action: action, EntityID: entityID})
}

func (b *Bus) deliver(ctx context.Context, s subscription, evt types.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.ErrorContext(ctx, "event handler panicked",
				"topic", evt.Topic,
				"subscription_id", s.id,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.handler(ctx, evt)
}
