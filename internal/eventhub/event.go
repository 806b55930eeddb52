package eventhub

import (
	"time"

	"github.com/google/uuid"
)

// Direction classifies an event relative to the bridge.
type Direction string

const (
	DirectionIn    Direction = "in"    // inbound client request
	DirectionOut   Direction = "out"   // outbound chunk or response
	DirectionEvent Direction = "event" // internal lifecycle transition
	DirectionError Direction = "error" // failure observed anywhere
)

// Event is one immutable diagnostic record. It is never mutated after
// creation and is retained only by whoever happens to be subscribed.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// New stamps a fresh event.
func New(direction Direction, source, message string, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Direction: direction,
		Source:    source,
		Message:   message,
		Data:      data,
	}
}
