// Package comms provides the in-process event bus that carries task change
// notifications from the API and webhook paths to live subscribers.
package comms

import (
	"context"
	"time"
)

// EventType identifies what happened to a task.
type EventType string

const (
	TaskCreated EventType = "task.created"
	TaskUpdated EventType = "task.updated"
	TaskDeleted EventType = "task.deleted"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Event is a single task change notification.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TaskID    int64     `json:"task_id"`
	Reason    string    `json:"reason,omitempty"` // e.g. "push", "review", "api"
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler processes a published event.
type Handler func(ctx context.Context, ev *Event) error

// Bus fans task events out to subscribers.
type Bus interface {
	// Publish delivers ev to every handler subscribed to its type and to
	// AllEvents subscribers.
	Publish(ctx context.Context, ev *Event) error

	// Subscribe registers a handler for an event type (or AllEvents).
	// Returns an unsubscribe function.
	Subscribe(topic string, handler Handler) (unsubscribe func())

	// History returns up to limit of the most recent events, oldest first.
	History(limit int) []*Event
}
