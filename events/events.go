// Package events is an in-process publish/subscribe bus. It satisfies
// warden.PubSub so features can publish without knowing who listens.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aquamarinepk/warden"
)

// HandlerFunc processes an event message.
type HandlerFunc func(ctx context.Context, msg []byte) error

// Publisher publishes events to topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg []byte) error
}

// Subscriber subscribes to topics and processes events.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler HandlerFunc) error
}

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// Bus delivers each message synchronously to the topic's handlers in
// subscription order. A subscription lasts until its context is done.
type Bus struct {
	log warden.Logger

	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscription
}

func NewBus(log warden.Logger) *Bus {
	if log == nil {
		log = warden.NewNoopLogger()
	}
	return &Bus{log: log, topics: make(map[string][]subscription)}
}

// Publish runs every handler even when one fails; failures are joined.
func (b *Bus) Publish(ctx context.Context, topic string, msg []byte) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.topics[topic]...)
	b.mu.RUnlock()

	var errs error
	for _, sub := range subs {
		if err := sub.handler(ctx, msg); err != nil {
			b.log.Error("event handler failed", "topic", topic, "error", err)
			errs = errors.Join(errs, fmt.Errorf("%s: %w", topic, err))
		}
	}
	return errs
}

func (b *Bus) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	if topic == "" {
		return errors.New("events: topic required")
	}
	if handler == nil {
		return errors.New("events: nil handler")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			b.unsubscribe(topic, id)
		}()
	}
	return nil
}

// Subscribers returns the number of live subscriptions for topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
}
