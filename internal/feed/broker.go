// Package feed pushes joke changes to their owner's connected clients.
//
// Two transports share this package:
//   - an in-process Broker streamed over WebSocket (/jokes/stream), which
//     works with any database backend;
//   - a reverse proxy to an ElectricSQL shape endpoint, which replicates
//     from Postgres and is pinned to the caller's rows.
package feed

import (
	"log/slog"
	"sync"

	"github.com/sakif/jokebox/internal/metrics"
	"github.com/sakif/jokebox/internal/model"
)

// DefaultBuffer is how many undelivered events a subscriber may queue
// before it is considered too slow and dropped.
const DefaultBuffer = 32

// Subscription receives the events of one user. The channel is closed when
// the subscription ends, either by Unsubscribe or because it fell behind.
type Subscription struct {
	UserID string
	events chan model.JokeEvent
}

// Events is the receive side of the subscription.
func (s *Subscription) Events() <-chan model.JokeEvent {
	return s.events
}

// Broker fans JokeEvents out to subscribers, routed by the joke's owner.
// Publish never blocks: a subscriber whose buffer is full is removed and
// its channel closed, so one stalled client can't hold up writes.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	logger *slog.Logger
}

func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for userID's events. On a closed broker
// the returned subscription's channel is already closed.
func (b *Broker) Subscribe(userID string) *Subscription {
	sub := &Subscription{UserID: userID, events: make(chan model.JokeEvent, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.events)
		return sub
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	metrics.FeedSubscribers.Inc()
	return sub
}

// Unsubscribe is safe to call more than once and after a drop.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

// Publish delivers evt to every subscriber of the joke's owner.
func (b *Broker) Publish(evt model.JokeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[evt.Joke.UserID] {
		select {
		case sub.events <- evt:
		default:
			b.logger.Warn("dropping slow feed subscriber", slog.String("user_id", sub.UserID))
			metrics.FeedDropped.Inc()
			b.removeLocked(sub)
		}
	}
}

// Subscribers returns the number of live subscriptions for userID.
func (b *Broker) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// Close ends every subscription. Later Publish calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for sub := range set {
			b.removeLocked(sub)
		}
	}
	b.closed = true
}

func (b *Broker) removeLocked(sub *Subscription) {
	set, ok := b.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.UserID)
	}
	close(sub.events)
	metrics.FeedSubscribers.Dec()
}
