package events

import (
	"sync"
	"sync/atomic"
)

// GlobalKey is the special subscription key for all events.
const GlobalKey = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of its entity.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given entity.
	// Use GlobalKey ("*") to receive every event.
	Subscribe(entityID string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(entityID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// QueuedSubscriber is implemented by publishers that can deliver to a
// subscriber without ever dropping an event.
type QueuedSubscriber interface {
	// SubscribeQueued is Subscribe with an unbounded backlog. The caller
	// must keep reading until the channel is closed.
	SubscribeQueued(entityID string) <-chan Event
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]*subscription
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

// subscription is one subscriber channel. Queued subscriptions park events
// in backlog and a pump goroutine feeds ch.
type subscription struct {
	ch     chan Event
	queued bool

	mu      sync.Mutex
	backlog []Event
	closing bool
	wake    chan struct{}
}

func (s *subscription) enqueue(event Event) {
	s.mu.Lock()
	s.backlog = append(s.backlog, event)
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump delivers the backlog in order and closes ch once the subscription
// is closed and the backlog is empty.
func (s *subscription) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		if len(s.backlog) == 0 {
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			<-s.wake
			continue
		}
		event := s.backlog[0]
		s.backlog[0] = Event{}
		s.backlog = s.backlog[1:]
		s.mu.Unlock()
		s.ch <- event
	}
}

func (s *subscription) close() {
	if !s.queued {
		close(s.ch)
		return
	}
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.signal()
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]*subscription),
		bufferSize:  256,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to subscribers of its entity and to global
// subscribers. It never blocks: a full subscriber buffer drops the event
// for that subscriber and bumps Dropped. Queued subscribers never drop.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	p.send(p.subscribers[event.EntityID], event)
	if event.EntityID != GlobalKey {
		p.send(p.subscribers[GlobalKey], event)
	}
}

func (p *MemoryPublisher) send(subs []*subscription, event Event) {
	for _, sub := range subs {
		if sub.queued {
			sub.enqueue(event)
			continue
		}
		select {
		case sub.ch <- event:
		default:
			p.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel that receives events for the given entity.
func (p *MemoryPublisher) Subscribe(entityID string) <-chan Event {
	return p.subscribe(entityID, false)
}

// SubscribeQueued returns a channel that receives every event for the
// given entity. Events wait in an unbounded backlog until read, and
// Unsubscribe or Close deliver the backlog before closing the channel.
func (p *MemoryPublisher) SubscribeQueued(entityID string) <-chan Event {
	return p.subscribe(entityID, true)
}

func (p *MemoryPublisher) subscribe(entityID string, queued bool) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	sub := &subscription{queued: queued}
	if queued {
		sub.ch = make(chan Event)
		sub.wake = make(chan struct{}, 1)
		go sub.pump()
	} else {
		sub.ch = make(chan Event, p.bufferSize)
	}
	p.subscribers[entityID] = append(p.subscribers[entityID], sub)
	return sub.ch
}

// Unsubscribe removes and closes a subscription channel.
func (p *MemoryPublisher) Unsubscribe(entityID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[entityID]
	for i, sub := range subs {
		if sub.ch == ch {
			p.subscribers[entityID] = append(subs[:i], subs[i+1:]...)
			sub.close()
			break
		}
	}

	if len(p.subscribers[entityID]) == 0 {
		delete(p.subscribers, entityID)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	for entityID, subs := range p.subscribers {
		for _, sub := range subs {
			sub.close()
		}
		delete(p.subscribers, entityID)
	}
}

// SubscriberCount returns the number of subscribers for an entity.
func (p *MemoryPublisher) SubscriberCount(entityID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[entityID])
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (p *MemoryPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// NopPublisher is a no-op publisher for testing or when events are disabled.
type NopPublisher struct{}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(entityID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(entityID string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}
