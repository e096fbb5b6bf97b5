// Package events implements the provider's lifecycle event bus: a
// multi-producer, multi-consumer broadcast with a small bounded
// backlog per subscriber. Slow subscribers observe a Lagged gap
// instead of back-pressuring a provider session; events are
// best-effort observability and never load-bearing for correctness
// (spec.md §4.7).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javanhut/blobtransfer/internal/treehash"
)

// DefaultBacklog is the default per-subscriber buffered channel size.
const DefaultBacklog = 8

// Kind tags the variant of an Event.
type Kind int

const (
	RequestReceived Kind = iota
	TransferCompleted
	TransferAborted
)

func (k Kind) String() string {
	switch k {
	case RequestReceived:
		return "RequestReceived"
	case TransferCompleted:
		return "TransferCompleted"
	case TransferAborted:
		return "TransferAborted"
	default:
		return "Unknown"
	}
}

// Event is one lifecycle emission from a provider session. Fields not
// relevant to Kind are left zero.
type Event struct {
	Kind         Kind
	ConnectionID uuid.UUID
	RequestID    uint64
	Hash         treehash.Hash
	Err          error
	At           time.Time
}

// Lagged is delivered to a subscriber in place of the events it missed
// because its channel was full; Count is how many were dropped.
type Lagged struct {
	Count int
}

// subscriber is a bounded delivery channel plus a count of events
// dropped because it was ever found full.
type subscriber struct {
	ch     chan any
	lagged int
}

// Bus is the internally synchronized broadcast channel shared by every
// provider session.
type Bus struct {
	mu      sync.Mutex
	backlog int
	subs    map[int]*subscriber
	nextID  int
}

// New returns a Bus whose subscribers each get a buffered channel of
// the given backlog size; backlog<=0 selects DefaultBacklog.
func New(backlog int) *Bus {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Bus{backlog: backlog, subs: make(map[int]*subscriber)}
}

// Subscription is a handle returned by Subscribe. Receive reads the
// next Event or Lagged value; Unsubscribe stops delivery and releases
// the channel.
type Subscription struct {
	bus *Bus
	id  int
	ch  chan any
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan any, b.backlog)}
	b.subs[id] = sub
	return &Subscription{bus: b, id: id, ch: sub.ch}
}

// Receive blocks for the next delivered value: either an Event or a
// Lagged. The channel closes once Unsubscribe is called.
func (s *Subscription) Receive() (any, bool) {
	v, ok := <-s.ch
	return v, ok
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Publish broadcasts ev to every current subscriber without blocking:
// a subscriber whose channel is full is skipped and its lag counter is
// incremented. At the next successful delivery to it, a Lagged report
// of how many events it missed follows that event, when the channel
// has room for both; otherwise the count is kept for a later delivery.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			if sub.lagged > 0 {
				select {
				case sub.ch <- Lagged{Count: sub.lagged}:
					sub.lagged = 0
				default:
				}
			}
		default:
			sub.lagged++
		}
	}
}
