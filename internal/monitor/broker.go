package monitor

import (
	"sync"
	"time"
)

// Event is a status change for one device.
// Previous is empty when the device has just started being monitored.
type Event struct {
	DeviceID string    `json:"device_id"`
	Status   Status    `json:"status"`
	Previous Status    `json:"previous,omitempty"`
	At       time.Time `json:"timestamp"`
}

// Broker fans status events out to subscribers.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Events published after Subscribe
// returns are delivered in order on the subscription's channel. Subscribing
// to a closed broker returns an already-closed subscription.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{
		broker: b,
		wake:   make(chan struct{}, 1),
		events: make(chan Event),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	closed := b.closed
	if !closed {
		b.subs[sub] = struct{}{}
	}
	b.mu.Unlock()

	go sub.pump()
	if closed {
		sub.Close()
	}
	return sub
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish queues e for every subscriber. It never blocks on a subscriber.
func (b *Broker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.enqueue(e)
	}
}

// Close closes every subscription. Later Publish calls are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription is one consumer's ordered stream of events.
type Subscription struct {
	broker *Broker

	mu    sync.Mutex
	queue []Event

	wake      chan struct{}
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unsubscribes. Queued events that were not yet received are dropped.
// Other subscriptions are unaffected. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

func (s *Subscription) enqueue(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves queued events onto the delivery channel until Close.
func (s *Subscription) pump() {
	defer close(s.events)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		next := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- next:
		case <-s.done:
			return
		}
	}
}
