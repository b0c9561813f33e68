package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/events"
	"github.com/conductor-oer/support-service/internal/repository"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

// MessageService manages a ticket's append-only message threads.
type MessageService struct {
	tickets    repository.TicketRepository
	messages   repository.TicketMessageRepository
	dispatcher events.Dispatcher
}

// NewMessageService constructs the service.
func NewMessageService(tickets repository.TicketRepository, messages repository.TicketMessageRepository, dispatcher events.Dispatcher) *MessageService {
	return &MessageService{tickets: tickets, messages: messages, dispatcher: dispatcher}
}

// MessageSender identifies who is posting. Actor is set for authenticated
// callers; GuestEmail for guests.
type MessageSender struct {
	Actor      *domain.Actor
	GuestEmail string
}

// PostMessage appends a message to the ticket thread. Posting never
// changes ticket status.
func (s *MessageService) PostMessage(ctx context.Context, ticketUUID string, sender MessageSender, body string, attachments []string, msgType domain.TicketMessageType) (*domain.TicketMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	if !domain.ValidMessageType(msgType) {
		return nil, apperrors.NewValidationError("unknown message type", map[string]any{"type": msgType})
	}

	ticket, err := s.tickets.GetByUUID(ctx, ticketUUID)
	if err != nil {
		return nil, mapTicketErr(err, ticketUUID)
	}

	msg := &domain.TicketMessage{
		UUID:        uuid.NewString(),
		TicketUUID:  ticket.UUID,
		Body:        strings.TrimSpace(body),
		Attachments: attachments,
		Type:        msgType,
		TimeSent:    time.Now().UTC(),
	}

	switch {
	case sender.Actor.IsStaff():
		staffUUID := sender.Actor.UUID
		msg.SenderUUID = &staffUUID
		msg.SenderIsStaff = true
	case sender.Actor != nil:
		if !ticket.OwnedBy(sender.Actor.UUID) {
			return nil, apperrors.NewForbidden("ticket belongs to another user")
		}
		if msgType != domain.MessageTypeGeneral {
			return nil, apperrors.NewForbidden("only staff may post internal messages")
		}
		userUUID := sender.Actor.UUID
		msg.SenderUUID = &userUUID
	default:
		email := strings.ToLower(strings.TrimSpace(sender.GuestEmail))
		if email == "" {
			return nil, apperrors.NewUnauthorized("sender identity required")
		}
		if !ticket.IsGuestTicket() || ticket.Guest.Email != email {
			return nil, apperrors.NewForbidden("sender email does not match ticket guest")
		}
		if msgType != domain.MessageTypeGeneral {
			return nil, apperrors.NewForbidden("only staff may post internal messages")
		}
		msg.SenderEmail = &email
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishMessageEvent(ctx, ticket, msg, sender)
	return msg, nil
}

// ListMessages returns the ticket thread in chronological order, ties
// broken by sequence number. Internal messages are stripped for non-staff
// requesters regardless of who they are.
func (s *MessageService) ListMessages(ctx context.Context, ticketUUID string, requesterIsStaff bool) ([]domain.TicketMessage, error) {
	if _, err := s.tickets.GetByUUID(ctx, ticketUUID); err != nil {
		return nil, mapTicketErr(err, ticketUUID)
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketUUID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if requesterIsStaff {
		return msgs, nil
	}
	filtered := make([]domain.TicketMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Type == domain.MessageTypeInternal {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered, nil
}

func (s *MessageService) publishMessageEvent(ctx context.Context, ticket *domain.Ticket, msg *domain.TicketMessage, sender MessageSender) {
	if s.dispatcher == nil {
		return
	}
	actor := events.Actor{Type: domain.SubjectTypeUser}
	if sender.Actor != nil {
		uuidCopy := sender.Actor.UUID
		actor = events.Actor{Type: sender.Actor.Type, UUID: &uuidCopy}
	} else if msg.SenderEmail != nil {
		actor.GuestEmail = msg.SenderEmail
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:         uuid.NewString(),
		Type:       events.EventTicketMessageAdded,
		TicketUUID: ticket.UUID,
		Actor:      actor,
		Timestamp:  time.Now().UTC(),
		Payload: events.TicketMessageAddedPayload{
			MessageUUID: msg.UUID,
			MessageType: msg.Type,
			SenderStaff: msg.SenderIsStaff,
			BodyPreview: bodyPreview(msg.Body, 120),
		},
	})
}

// bodyPreview truncates by rune so multi-byte text never splits
// mid-character.
func bodyPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
