package playback

import (
	"errors"

	"github.com/google/uuid"
)

type EventType string

const (
	EventQueued   EventType = "queued"
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
	EventDropped  EventType = "dropped"
)

// Event describes a step in a request's life. Events of one queue are delivered in order.
type Event struct {
	Tenant    string    `json:"tenant"`
	Type      EventType `json:"type"`
	RequestID uuid.UUID `json:"request_id"`
	Text      string    `json:"text"`
	Error     string    `json:"error,omitempty"`
}

func outcomeEvent(err error) (EventType, string) {
	switch {
	case err == nil:
		return EventFinished, "finished"
	case errors.Is(err, ErrQueueCleared):
		return EventDropped, "cleared"
	case errors.Is(err, ErrSessionClosed):
		return EventDropped, "closed"
	default:
		return EventFailed, "failed"
	}
}
