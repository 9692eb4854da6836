package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketsLoaded      EventType = "tickets_loaded"
	EventMutationStarted    EventType = "mutation_started"
	EventMutationCommitted  EventType = "mutation_committed"
	EventMutationRolledBack EventType = "mutation_rolled_back"
	EventMutationFailed     EventType = "mutation_failed"
)

// SettledTypes are the event types that end a mutation.
var SettledTypes = []EventType{EventMutationCommitted, EventMutationRolledBack, EventMutationFailed}

// Event represents a change emitted by a ticket store.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(t EventType, sessionID, ticketID string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
		TicketID:  ticketID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketsLoadedPayload payload.
type TicketsLoadedPayload struct {
	Count      int `json:"count"`
	Duplicates int `json:"duplicates,omitempty"`
}

// MutationPayload describes a mutation transition.
type MutationPayload struct {
	MutationID string               `json:"mutation_id"`
	Kind       domain.MutationKind  `json:"kind"`
	State      domain.MutationState `json:"state"`
	Code       string               `json:"code,omitempty"`
	Cause      string               `json:"cause,omitempty"`
	Message    string               `json:"message,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
}
