/*
Package broadcast implements the multi-subscriber notification channel the
engine hangs off every key.

Semantics:
  - every subscriber receives every event published after it joined,
    in publication order
  - no replay: a late joiner sees nothing that happened before Subscribe
  - the broadcaster is never closed implicitly; it survives any number of
    Subscribe/Cancel cycles until Close
*/
package broadcast

import "sync"

// subscriberBuffer is how many undelivered events a single subscriber may
// accumulate before further publishes are dropped for it. Dropping keeps a
// slow consumer from ever blocking the cache's hot path.
const subscriberBuffer = 64

// Broadcaster fans each published value out to all current subscribers.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

// Subscription is one observer's view of a Broadcaster.
type Subscription[T any] struct {
	b  *Broadcaster[T]
	ch chan T
}

// New creates an empty broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscribe registers a new observer. Events published before this call are
// not replayed. Subscribing to a closed broadcaster yields a subscription
// whose channel is already closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{b: b, ch: make(chan T, subscriberBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

/*
Publish delivers v to every current subscriber.

The send never blocks. If a subscriber has fallen more than
subscriberBuffer events behind, the event is dropped for that subscriber
only. Blocking here would let one stuck observer stall every fetch on the
key.
*/
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			// subscriber too far behind, drop for it
		}
	}
}

// Len reports the current number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close terminates every subscription. Publish becomes a no-op and every
// subscriber's channel is closed after its pending events drain.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription[T]]struct{})
}

// C is the channel events arrive on. It is closed by Cancel or by the
// broadcaster's Close.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Cancel removes the subscription and closes its channel. Safe to call
// more than once, and safe after the broadcaster itself closed.
func (s *Subscription[T]) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}
