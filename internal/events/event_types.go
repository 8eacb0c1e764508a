package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketEvicted       EventType = "ticket_evicted"
	EventCycleCompleted      EventType = "cycle_completed"
	EventSweepCompleted      EventType = "sweep_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	MessageID       string                `json:"message_id"`
	Number          string                `json:"number"`
	Category        string                `json:"category"`
	AssignmentGroup string                `json:"assignment_group"`
	Priority        domain.TicketPriority `json:"priority"`
	CallerFallback  bool                  `json:"caller_fallback"`
	GroupFallback   bool                  `json:"group_fallback"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Change domain.StatusChange `json:"change"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Notified bool   `json:"notified"`
	Error    string `json:"error,omitempty"`
}

// TicketEvictedPayload payload.
type TicketEvictedPayload struct {
	Retention time.Duration `json:"retention"`
}

// CycleCompletedPayload payload.
type CycleCompletedPayload struct {
	Run domain.CycleRun `json:"run"`
}

// SweepCompletedPayload payload.
type SweepCompletedPayload struct {
	Report domain.SweepReport `json:"report"`
}
