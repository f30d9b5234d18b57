package events

import (
	"bytes"
	"testing"
	"time"
)

func TestCLIPublisher_WritesEvents(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	pub.Publish(TaskChanged("task-1"))
	pub.Publish(KRChanged("kr-1"))

	want := "event task_changed task-1\nevent kr_changed kr-1\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestCLIPublisher_FansOutToInner(t *testing.T) {
	var buf bytes.Buffer
	inner := NewMemoryPublisher()
	pub := NewCLIPublisher(&buf, WithInnerPublisher(inner))
	defer pub.Close()

	ch := pub.Subscribe(GlobalKey)
	pub.Publish(KRChanged("kr-1"))

	select {
	case e := <-ch:
		if e.EntityID != "kr-1" {
			t.Errorf("expected entity kr-1, got %s", e.EntityID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	pub.Unsubscribe(GlobalKey, ch)
	if n := inner.SubscriberCount(GlobalKey); n != 0 {
		t.Errorf("expected no subscribers after unsubscribe, got %d", n)
	}
}

func TestCLIPublisher_CountsInnerDrops(t *testing.T) {
	var buf bytes.Buffer
	inner := NewMemoryPublisher(WithBufferSize(1))
	pub := NewCLIPublisher(&buf, WithInnerPublisher(inner))
	defer pub.Close()

	_ = pub.Subscribe("kr-1")
	pub.Publish(KRChanged("kr-1"))
	pub.Publish(KRChanged("kr-1"))

	if got := pub.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestCLIPublisher_SubscribeQueuedUsesInner(t *testing.T) {
	var buf bytes.Buffer
	inner := NewMemoryPublisher(WithBufferSize(1))
	pub := NewCLIPublisher(&buf, WithInnerPublisher(inner))

	ch := pub.SubscribeQueued(GlobalKey)
	pub.Publish(KRChanged("kr-1"))
	pub.Publish(KRChanged("kr-2"))
	pub.Close()

	var got []string
	for e := range ch {
		got = append(got, e.EntityID)
	}
	if len(got) != 2 || got[0] != "kr-1" || got[1] != "kr-2" {
		t.Errorf("queued events = %v, want [kr-1 kr-2]", got)
	}
	if pub.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", pub.Dropped())
	}
}

func TestCLIPublisher_WithoutInner(t *testing.T) {
	var buf bytes.Buffer
	pub := NewCLIPublisher(&buf)

	ch := pub.Subscribe("kr-1")
	if _, ok := <-ch; ok {
		t.Error("expected a closed channel without an inner publisher")
	}
	if pub.Dropped() != 0 {
		t.Error("expected no drops without an inner publisher")
	}
	pub.Unsubscribe("kr-1", ch)
	pub.Close()
}
