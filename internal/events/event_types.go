package events

import (
	"time"

	"github.com/conductor-oer/support-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketMessageAdded  EventType = "ticket_message_added"
	EventTicketDeleted       EventType = "ticket_deleted"
)

// Actor encapsulates actor metadata for an event. Guests carry an email
// instead of a UUID.
type Actor struct {
	Type       domain.SubjectType `json:"type"`
	UUID       *string            `json:"uuid,omitempty"`
	GuestEmail *string            `json:"guest_email,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	TicketUUID string      `json:"ticket_uuid"`
	Actor      Actor       `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title       string                `json:"title"`
	Category    string                `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	GuestTicket bool                  `json:"guest_ticket"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedUUIDs []string `json:"assigned_uuids"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageUUID string                   `json:"message_uuid"`
	MessageType domain.TicketMessageType `json:"message_type"`
	SenderStaff bool                     `json:"sender_staff"`
	BodyPreview string                   `json:"body_preview"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Title string `json:"title"`
}
