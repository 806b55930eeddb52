// Package eventhub fans structured activity events out to any number of
// observer streams. It is purely diagnostic: a hub with zero subscribers
// behaves identically to one with many, aside from doing no writes.
package eventhub

import (
	"io"
	"log"
	"sync"
	"time"
)

// Sink receives events from the hub. Implementations must tolerate
// SendEvent being called after their underlying channel is gone by
// returning an error, which evicts them.
type Sink interface {
	SendEvent(evt Event) error
	Close() error
}

// Pinger is implemented by sinks that want periodic keep-alive writes.
type Pinger interface {
	Ping() error
}

// subscriberBuffer is how many undelivered events a subscriber may lag
// behind before it is evicted. A peer that cannot drain this many is stalled,
// and the hub must never wait for it.
const subscriberBuffer = 64

// subscriber is the hub-side state for one sink: a bounded delivery queue
// drained by its own goroutine, so emitters never block on the sink's write.
type subscriber struct {
	queue chan Event
	stop  chan struct{}
}

// Hub owns the subscriber set. Delivery is in emission order per subscriber;
// a failed or stalled write evicts only that subscriber.
type Hub struct {
	mu        sync.Mutex
	subs      map[Sink]*subscriber
	keepAlive time.Duration
	closed    bool
	logger    *log.Logger
	wg        sync.WaitGroup
}

// NewHub creates a hub. keepAlive <= 0 disables subscriber pings.
func NewHub(keepAlive time.Duration) *Hub {
	return &Hub{
		subs:      make(map[Sink]*subscriber),
		keepAlive: keepAlive,
		logger:    log.New(io.Discard, "", 0),
	}
}

// SetLogger overrides the hub logger.
func (h *Hub) SetLogger(logger *log.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// Subscribe adds a sink and starts its delivery loop. Subscribing to a
// closed hub closes the sink immediately.
func (h *Hub) Subscribe(s Sink) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = s.Close()
		return
	}
	if _, ok := h.subs[s]; ok {
		h.mu.Unlock()
		return
	}
	sub := &subscriber{
		queue: make(chan Event, subscriberBuffer),
		stop:  make(chan struct{}),
	}
	h.subs[s] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	go h.deliverLoop(s, sub)
}

// Unsubscribe removes a sink without closing it.
func (h *Hub) Unsubscribe(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

// SubscriberCount reports the current subscriber count.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emit queues evt for every current subscriber and returns without waiting
// for any write. A subscriber whose queue is full is evicted and closed; the
// rest still receive the event.
func (h *Hub) Emit(evt Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	var stalled []Sink
	for s, sub := range h.subs {
		select {
		case sub.queue <- evt:
		default:
			stalled = append(stalled, s)
		}
	}
	for _, s := range stalled {
		h.logger.Printf("dropping event subscriber: queue full")
		h.removeLocked(s)
	}
	h.mu.Unlock()

	for _, s := range stalled {
		_ = s.Close()
	}
}

// Close evicts and closes every subscriber and waits for their delivery
// loops to finish. Further Emit calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	sinks := make([]Sink, 0, len(h.subs))
	for s := range h.subs {
		sinks = append(sinks, s)
	}
	for _, s := range sinks {
		h.removeLocked(s)
	}
	h.mu.Unlock()

	for _, s := range sinks {
		_ = s.Close()
	}
	h.wg.Wait()
}

// removeLocked deletes the sink and signals its delivery loop. Callers hold
// h.mu.
func (h *Hub) removeLocked(s Sink) {
	sub, ok := h.subs[s]
	if !ok {
		return
	}
	delete(h.subs, s)
	close(sub.stop)
}

// drop evicts a sink from the delivery loop after a write or ping failure.
func (h *Hub) drop(s Sink, reason string) {
	h.mu.Lock()
	_, live := h.subs[s]
	if live {
		h.logger.Printf("dropping event subscriber: %s", reason)
		h.removeLocked(s)
	}
	h.mu.Unlock()
	if live {
		_ = s.Close()
	}
}

// deliverLoop writes one subscriber's queue to its sink in order. Only this
// goroutine touches the sink for event delivery, so a stalled peer stalls
// nothing but itself.
func (h *Hub) deliverLoop(s Sink, sub *subscriber) {
	defer h.wg.Done()

	var tick <-chan time.Time
	pinger, pings := s.(Pinger)
	if pings && h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-sub.stop:
			return
		case evt := <-sub.queue:
			if err := s.SendEvent(evt); err != nil {
				h.drop(s, "write failed")
				return
			}
		case <-tick:
			if err := pinger.Ping(); err != nil {
				h.drop(s, "ping failed")
				return
			}
		}
	}
}
