package events

import (
	"fmt"
	"io"
	"sync"
)

// CLIPublisher writes one line per event to an io.Writer (typically
// stderr) and fans events out to an inner publisher.
type CLIPublisher struct {
	inner Publisher
	out   io.Writer
	mu    sync.Mutex
}

// CLIPublisherOption configures a CLIPublisher.
type CLIPublisherOption func(*CLIPublisher)

// WithInnerPublisher sets an inner publisher to fan out events to.
func WithInnerPublisher(p Publisher) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.inner = p
	}
}

// NewCLIPublisher creates a publisher that writes events to the given writer.
func NewCLIPublisher(out io.Writer, opts ...CLIPublisherOption) *CLIPublisher {
	p := &CLIPublisher{out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes the event and fans it out to the inner publisher.
func (p *CLIPublisher) Publish(event Event) {
	p.mu.Lock()
	_, _ = fmt.Fprintf(p.out, "event %s %s\n", event.Type, event.EntityID)
	p.mu.Unlock()

	if p.inner != nil {
		p.inner.Publish(event)
	}
}

// Subscribe delegates to inner publisher or returns closed channel.
func (p *CLIPublisher) Subscribe(entityID string) <-chan Event {
	if p.inner != nil {
		return p.inner.Subscribe(entityID)
	}
	ch := make(chan Event)
	close(ch)
	return ch
}

// SubscribeQueued delegates to the inner publisher when it supports
// queued subscriptions and falls back to Subscribe otherwise.
func (p *CLIPublisher) SubscribeQueued(entityID string) <-chan Event {
	if queued, ok := p.inner.(QueuedSubscriber); ok {
		return queued.SubscribeQueued(entityID)
	}
	return p.Subscribe(entityID)
}

// Unsubscribe delegates to inner publisher.
func (p *CLIPublisher) Unsubscribe(entityID string, ch <-chan Event) {
	if p.inner != nil {
		p.inner.Unsubscribe(entityID, ch)
	}
}

// Close delegates to inner publisher.
func (p *CLIPublisher) Close() {
	if p.inner != nil {
		p.inner.Close()
	}
}

// Dropped reports the inner publisher's dropped deliveries, or 0 when it
// does not count them.
func (p *CLIPublisher) Dropped() int64 {
	if counted, ok := p.inner.(interface{ Dropped() int64 }); ok {
		return counted.Dropped()
	}
	return 0
}
