// Package pubsub provides a generic publish/subscribe event system used to
// fan poll results, push notices and connectivity changes out to the console.
package pubsub

import "time"

// EventType represents the type of event being published.
type EventType string

const (
	CreatedEvent EventType = "created"
	UpdatedEvent EventType = "updated"
	DeletedEvent EventType = "deleted"

	// StatusEvent carries a health/connectivity transition rather than data.
	StatusEvent EventType = "status"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
