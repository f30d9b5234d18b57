// Package events carries entity change notifications from the entity layer
// to the recomputation engine.
package events

import (
	"time"
)

// EventType defines the type of event.
type EventType string

const (
	// EventTaskChanged indicates a task was created or modified.
	EventTaskChanged EventType = "task_changed"
	// EventKRChanged indicates a key result was created or modified.
	EventKRChanged EventType = "kr_changed"
)

// Event represents a published change notification.
type Event struct {
	Type     EventType `json:"type"`
	EntityID string    `json:"entity_id"`
	Time     time.Time `json:"time"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType, entityID string) Event {
	return Event{
		Type:     eventType,
		EntityID: entityID,
		Time:     time.Now(),
	}
}

// TaskChanged returns an event for a changed task.
func TaskChanged(taskID string) Event {
	return NewEvent(EventTaskChanged, taskID)
}

// KRChanged returns an event for a changed key result.
func KRChanged(krID string) Event {
	return NewEvent(EventKRChanged, krID)
}
