// Package eventbus is a process-local publish/subscribe bus with a fixed set of
// topics. Publishing is synchronous and fire-and-forget: a panicking or slow
// subscriber never fails the publisher.
package eventbus

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Topic string

const (
	TopicRequestsUpdated      Topic = "requestsUpdated"
	TopicTasksUpdated         Topic = "tasksUpdated"
	TopicRefreshNotifications Topic = "refreshNotifications"
	TopicRefreshCredentials   Topic = "refreshCredentials"
	TopicRefreshProjects      Topic = "refreshProjects"
	TopicRefreshSubscriptions Topic = "refreshSubscriptions"
)

// Topics lists every known topic.
var Topics = []Topic{
	TopicRequestsUpdated,
	TopicTasksUpdated,
	TopicRefreshNotifications,
	TopicRefreshCredentials,
	TopicRefreshProjects,
	TopicRefreshSubscriptions,
}

func (t Topic) IsValid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

// Event says "this collection changed". Audience narrows delivery for push
// channels; an empty audience means everyone interested.
type Event struct {
	Topic    Topic     `json:"topic"`
	EntityID string    `json:"entityId,omitempty"`
	Audience []string  `json:"-"`
	Occurred time.Time `json:"occurredAt"`
}

// Addressed reports whether the event concerns userID.
func (e Event) Addressed(userID string) bool {
	if len(e.Audience) == 0 {
		return true
	}
	for _, id := range e.Audience {
		if id == userID {
			return true
		}
	}
	return false
}

type Handler func(Event)

type Bus interface {
	Publish(evt Event)
	Subscribe(topic Topic, handler Handler) (unsubscribe func())
	SubscribeAll(handler Handler) (unsubscribe func())
	SubscribersCount(topic Topic) int
}

type subscription struct {
	id      uint64
	handler Handler
}

type bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[Topic][]subscription
	all    []subscription
	logger zerolog.Logger
	nowFn  func() time.Time
}

func New(logger zerolog.Logger) Bus {
	return &bus{
		topics: make(map[Topic][]subscription),
		logger: logger.With().Str("component", "eventbus").Logger(),
		nowFn:  time.Now,
	}
}

func (b *bus) Publish(evt Event) {
	if evt.Occurred.IsZero() {
		evt.Occurred = b.nowFn().UTC()
	}

	b.mu.RLock()
	handlers := make([]subscription, 0, len(b.topics[evt.Topic])+len(b.all))
	handlers = append(handlers, b.topics[evt.Topic]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Debug().Str("topic", string(evt.Topic)).Msg("no subscribers for event")
		return
	}
	sort.Slice(handlers, func(i, j int) bool { return handlers[i].id < handlers[j].id })
	for _, sub := range handlers {
		b.dispatch(sub, evt)
	}
}

func (b *bus) dispatch(sub subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("topic", string(evt.Topic)).
				Uint64("subscription", sub.id).
				Interface("panic", r).
				Msg("eventbus handler panicked")
		}
	}()
	sub.handler(evt)
}

func (b *bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: handler})
	return func() { b.remove(topic, id) }
}

func (b *bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: handler})
	return func() { b.remove("", id) }
}

func (b *bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == "" {
		b.all = without(b.all, id)
		return
	}
	b.topics[topic] = without(b.topics[topic], id)
}

func without(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, sub := range subs {
		if sub.id != id {
			out = append(out, sub)
		}
	}
	return out
}

func (b *bus) SubscribersCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic]) + len(b.all)
}
