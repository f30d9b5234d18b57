package cascade

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/okr/internal/events"
)

// Submitter accepts cascade jobs. *Dispatcher implements it.
type Submitter interface {
	SubmitWait(ctx context.Context, job Job) error
}

// Listen subscribes to every change event on pub and submits the matching
// cascade job, waiting for queue space instead of dropping. When pub
// supports queued subscriptions no event is lost to a full buffer. It
// returns a stop function that unsubscribes and waits for the listener to
// hand off every event received so far. The listener also exits when pub
// is closed.
func Listen(pub events.Publisher, sub Submitter, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	var ch <-chan events.Event
	if queued, ok := pub.(events.QueuedSubscriber); ok {
		ch = queued.SubscribeQueued(events.GlobalKey)
	} else {
		ch = pub.Subscribe(events.GlobalKey)
	}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			job, ok := jobFor(ev)
			if !ok {
				logger.Debug("ignoring event", "type", ev.Type, "entity_id", ev.EntityID)
				continue
			}
			if err := sub.SubmitWait(context.Background(), job); err != nil {
				logger.Warn("submit cascade failed", "job", job.String(), "error", err)
			}
		}
	}()

	return func() {
		pub.Unsubscribe(events.GlobalKey, ch)
		<-done
	}
}

func jobFor(ev events.Event) (Job, bool) {
	if ev.EntityID == "" {
		return Job{}, false
	}
	switch ev.Type {
	case events.EventTaskChanged:
		return Job{Kind: JobTask, ID: ev.EntityID}, true
	case events.EventKRChanged:
		return Job{Kind: JobKR, ID: ev.EntityID}, true
	default:
		return Job{}, false
	}
}
