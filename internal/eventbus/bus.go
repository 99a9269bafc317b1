// Package eventbus implements the core's single in-process broadcast
// channel: multiple producers (MarketFeed, UserFeed) publish normalized
// events, multiple consumers (PluginSupervisor bridges) subscribe and
// receive every event published after they subscribed.
//
// Style is grounded on the simple pub/sub idiom the rest of this codebase
// uses (mutex-guarded subscriber slice, Subscribe/Publish), generalized to
// a bounded, lossy broadcast: a slow subscriber never blocks a producer or
// other subscribers. Instead it falls behind and is told so via a lag
// counter, the same "lagged receiver" contract the venue's own broadcast
// primitive exposes.
package eventbus

import (
	"sync"
	"sync/atomic"

	"tradehost/internal/event"
	"tradehost/internal/logging"
)

// DefaultCapacity is the bus capacity named by the core's concurrency model.
const DefaultCapacity = 10000

// Subscription is a consumer's handle on the bus. Recv blocks until an
// event is available or the subscription is closed.
type Subscription struct {
	ch       chan event.Event
	lagCount *int64
	bus      *Bus
	id       uint64
	closed   int32
}

// Recv returns the next event, or ok=false once the subscription has been
// closed and drained.
func (s *Subscription) Recv() (event.Event, bool) {
	e, ok := <-s.ch
	return e, ok
}

// Chan exposes the underlying channel for use in select statements (the
// bridge's receive-with-timeout pattern needs this).
func (s *Subscription) Chan() <-chan event.Event {
	return s.ch
}

// Lag returns the number of events dropped for this subscriber because its
// buffer was full when they were published.
func (s *Subscription) Lag() int64 {
	return atomic.LoadInt64(s.lagCount)
}

// Close unsubscribes; any further Recv returns ok=false once drained.
func (s *Subscription) Close() {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return
	}
	s.bus.remove(s.id)
	close(s.ch)
}

// Bus is the bounded MPMC broadcast channel described in component design
// §4.5. Capacity bounds each subscriber's private buffer, not a single
// shared ring; this keeps a slow subscriber's backlog from affecting
// anyone else's view of the stream.
type Bus struct {
	mu          sync.RWMutex
	subs        map[uint64]*Subscription
	nextID      uint64
	capacity    int
	logger      *logging.Logger
	publishedCt int64
}

// New creates a Bus with the given per-subscriber buffer capacity. A
// capacity of 0 uses DefaultCapacity.
func New(capacity int, logger *logging.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		subs:     make(map[uint64]*Subscription),
		capacity: capacity,
		logger:   logger.WithComponent("eventbus"),
	}
}

// Subscribe registers a new consumer. Events published before Subscribe
// returns are never delivered to it (no replay, no history).
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	var lag int64
	sub := &Subscription{
		ch:       make(chan event.Event, b.capacity),
		lagCount: &lag,
		bus:      b,
		id:       id,
	}
	b.subs[id] = sub
	return sub
}

// Publish fans e out to every live subscriber. Non-blocking: a subscriber
// whose buffer is full has the event dropped for it and its lag counter
// incremented, rather than stalling the producer.
func (b *Bus) Publish(e event.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	atomic.AddInt64(&b.publishedCt, 1)

	for _, sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
			n := atomic.AddInt64(sub.lagCount, 1)
			if n%1000 == 0 {
				b.logger.Warn("subscriber lagging, events dropped", "dropped", n)
			}
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns the total number of events ever published.
func (b *Bus) Published() int64 {
	return atomic.LoadInt64(&b.publishedCt)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}
