// Package events is the in-process broadcast bus that connects committed
// writes (Version Store) to watch streams (API) and the controller's
// event-driven dispatch (CTL). It is an optimization, not the source of
// truth: pkg/kv is the truth, and a subscriber that overflows its buffer
// falls back to replaying commit history instead of trusting the bus.
package events

import (
	"sync"
	"time"

	"github.com/reddwarf-sh/reddwarf/pkg/resource"
)

// Kind is the watch event type delivered to subscribers.
type Kind string

const (
	Added    Kind = "ADDED"
	Modified Kind = "MODIFIED"
	Deleted  Kind = "DELETED"
)

// Event is emitted once per (resource, commit) pair — every resource a
// commit's Changes touch produces exactly one Event, in commit order.
type Event struct {
	Kind      Kind
	Key       resource.Key
	CommitID  string
	Timestamp time.Time
}

// Matches reports whether this event falls within a watch's scope: a GVK
// and, if non-empty, a single namespace.
func (e Event) Matches(gvk resource.GroupVersionKind, namespace string) bool {
	if e.Key.GVK != gvk {
		return false
	}
	return namespace == "" || e.Key.Namespace == namespace
}

const subscriberBufferSize = 64

// Subscriber is a bounded per-watcher channel. Overflow marks it
// Overflowed and closes Events — the watch handler that owns this
// subscriber is responsible for detecting that and emitting the
// spec-mandated synthetic "Gone" event to its client, since only the
// handler knows the last resourceVersion it actually delivered.
type Subscriber struct {
	Events chan *Event

	mu         sync.Mutex
	overflowed bool
	closed     bool
}

// Overflowed reports whether this subscriber's buffer ever overflowed.
func (s *Subscriber) Overflowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflowed
}

func (s *Subscriber) markOverflowed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.overflowed = true
	s.closed = true
	close(s.Events)
}

func (s *Subscriber) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}

// Broker fans committed events out to every active subscriber.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new watcher and returns its Subscriber handle.
func (b *Broker) Subscribe() *Subscriber {
	sub := &Subscriber{Events: make(chan *Event, subscriberBufferSize)}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from the broker and closes its channel, unless
// it was already closed by an overflow.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	if sub.markClosed() {
		close(sub.Events)
	}
}

// Publish broadcasts event to every subscriber. A subscriber whose buffer
// is full is dropped from the broker and its channel closed — it must
// resume via a fresh watch replaying from commit history.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var overflowed []*Subscriber
	for _, sub := range subs {
		select {
		case sub.Events <- event:
		default:
			overflowed = append(overflowed, sub)
		}
	}
	if len(overflowed) == 0 {
		return
	}
	b.mu.Lock()
	for _, sub := range overflowed {
		delete(b.subscribers, sub)
	}
	b.mu.Unlock()
	for _, sub := range overflowed {
		sub.markOverflowed()
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
