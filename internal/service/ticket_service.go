package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/conductor-oer/support-service/internal/auth"
	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/events"
	"github.com/conductor-oer/support-service/internal/repository"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

const maxDescriptionLen = 500

// TicketService coordinates the ticket lifecycle: creation, status
// transitions, assignment, deletion and dashboard listing.
type TicketService struct {
	tickets     repository.TicketRepository
	feed        repository.TicketFeedRepository
	attachments repository.AttachmentRepository
	accessKeys  *auth.AccessKeyManager
	dispatcher  events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	FeedRepo       repository.TicketFeedRepository
	AttachmentRepo repository.AttachmentRepository
	AccessKeys     *auth.AccessKeyManager
	Dispatcher     events.Dispatcher
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:     deps.TicketRepo,
		feed:        deps.FeedRepo,
		attachments: deps.AttachmentRepo,
		accessKeys:  deps.AccessKeys,
		dispatcher:  deps.Dispatcher,
	}
}

// GuestInput describes an unauthenticated submitter.
type GuestInput struct {
	FirstName    string
	LastName     string
	Email        string
	Organization string
}

// TicketCreateInput describes the ticket creation payload. Exactly one of
// UserUUID and Guest must be set.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    string
	Priority    domain.TicketPriority
	Apps        []int64
	CapturedURL *string
	Attachments []string
	UserUUID    *string
	Guest       *GuestInput
}

// CreateTicket opens a new ticket. For guest tickets the returned string
// is the one-time plaintext access key; it is empty for user tickets.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, string, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	ticket := &domain.Ticket{
		UUID:          uuid.NewString(),
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Category:      strings.TrimSpace(input.Category),
		Priority:      input.Priority,
		Status:        domain.TicketStatusOpen,
		CapturedURL:   input.CapturedURL,
		Apps:          input.Apps,
		AssignedUUIDs: []string{},
		UserUUID:      input.UserUUID,
		TimeOpened:    now,
	}

	var accessKey string
	if input.Guest != nil {
		ticket.Guest = &domain.TicketGuest{
			FirstName:    strings.TrimSpace(input.Guest.FirstName),
			LastName:     strings.TrimSpace(input.Guest.LastName),
			Email:        strings.ToLower(strings.TrimSpace(input.Guest.Email)),
			Organization: strings.TrimSpace(input.Guest.Organization),
		}
		key, hash, err := s.accessKeys.Generate()
		if err != nil {
			return nil, "", apperrors.MapError(err)
		}
		accessKey = key
		ticket.GuestAccessKeyHash = &hash
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, "", apperrors.MapError(err)
	}

	uploadedBy := creatorDisplay(ticket)
	for _, name := range input.Attachments {
		record := &domain.TicketAttachment{
			UUID:         uuid.NewString(),
			Name:         name,
			UploadedBy:   uploadedBy,
			UploadedDate: now,
		}
		if err := s.attachments.Create(ctx, ticket.UUID, record); err != nil {
			return nil, "", apperrors.MapError(err)
		}
		ticket.Attachments = append(ticket.Attachments, *record)
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketCreated,
		TicketUUID: ticket.UUID,
		Actor:      creatorEventActor(ticket),
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			Category:    ticket.Category,
			Priority:    ticket.Priority,
			GuestTicket: ticket.IsGuestTicket(),
		},
	})
	return ticket, accessKey, nil
}

// GetTicket fetches one ticket with its feed and attachments, enforcing
// the view authorization rules.
func (s *TicketService) GetTicket(ctx context.Context, ticketUUID string, actor *domain.Actor, accessKey string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketUUID)
	if err != nil {
		return nil, err
	}
	if err := s.AuthorizeView(ticket, actor, accessKey); err != nil {
		return nil, err
	}
	if ticket.Feed, err = s.feed.ListByTicket(ctx, ticket.UUID); err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Attachments, err = s.attachments.ListByTicket(ctx, ticket.UUID); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// AuthorizeView checks whether the caller may read the ticket: staff
// always, the opening user, or a guest presenting a valid access key.
func (s *TicketService) AuthorizeView(ticket *domain.Ticket, actor *domain.Actor, accessKey string) error {
	if actor.IsStaff() {
		return nil
	}
	if actor != nil && ticket.OwnedBy(actor.UUID) {
		return nil
	}
	if ticket.IsGuestTicket() && ticket.GuestAccessKeyHash != nil &&
		s.accessKeys.Verify(*ticket.GuestAccessKeyHash, accessKey) {
		return nil
	}
	return apperrors.NewUnauthorized("not authorized to view this ticket")
}

// UpdateStatus moves the ticket through the state machine. The write is a
// compare-and-set on the observed status, so a concurrent transition
// surfaces as a conflict instead of a silent overwrite.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.Actor, ticketUUID string, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may change ticket status")
	}
	if !domain.ValidStatus(newStatus) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}

	ticket, err := s.loadTicket(ctx, ticketUUID)
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status
	if !domain.CanTransition(oldStatus, newStatus) {
		return nil, apperrors.NewInvalidTransition(
			fmt.Sprintf("cannot move ticket from %s to %s", oldStatus, newStatus),
			map[string]any{"from": oldStatus, "to": newStatus})
	}

	var timeClosed *time.Time
	if newStatus == domain.TicketStatusClosed {
		now := time.Now().UTC()
		timeClosed = &now
	}

	matched, err := s.tickets.UpdateStatus(ctx, ticket.UUID, oldStatus, newStatus, timeClosed)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !matched {
		if _, err := s.loadTicket(ctx, ticketUUID); err != nil {
			return nil, err
		}
		return nil, apperrors.NewConflict("ticket status changed concurrently", map[string]any{"expected": oldStatus})
	}
	ticket.Status = newStatus
	ticket.TimeClosed = timeClosed

	s.appendFeed(ctx, ticket.UUID, fmt.Sprintf("Status changed from %s to %s", oldStatus, newStatus), actor.DisplayName())
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketStatusChanged,
		TicketUUID: ticket.UUID,
		Actor:      staffEventActor(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return ticket, nil
}

// UpdatePriority changes the ticket priority. Non-status fields are
// last-write-wins.
func (s *TicketService) UpdatePriority(ctx context.Context, actor *domain.Actor, ticketUUID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may change ticket priority")
	}
	if !domain.ValidPriority(newPriority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}

	ticket, err := s.loadTicket(ctx, ticketUUID)
	if err != nil {
		return nil, err
	}
	oldPriority := ticket.Priority
	if err := s.tickets.UpdatePriority(ctx, ticket.UUID, newPriority); err != nil {
		return nil, mapTicketErr(err, ticketUUID)
	}
	ticket.Priority = newPriority

	if oldPriority != newPriority {
		s.appendFeed(ctx, ticket.UUID, fmt.Sprintf("Priority changed from %s to %s", oldPriority, newPriority), actor.DisplayName())
	}
	return ticket, nil
}

// Assign replaces the ticket's assignee list. Assigning a non-empty list
// to an open ticket moves it to in_progress; an empty list is allowed and
// never changes status.
func (s *TicketService) Assign(ctx context.Context, actor *domain.Actor, ticketUUID string, assignees []string) (*domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may assign tickets")
	}
	assignees = dedupe(assignees)

	ticket, err := s.loadTicket(ctx, ticketUUID)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.UpdateAssignees(ctx, ticket.UUID, assignees); err != nil {
		return nil, mapTicketErr(err, ticketUUID)
	}
	ticket.AssignedUUIDs = assignees

	if len(assignees) > 0 {
		s.appendFeed(ctx, ticket.UUID, "Assigned to "+strings.Join(assignees, ", "), actor.DisplayName())
	} else {
		s.appendFeed(ctx, ticket.UUID, "Assignees cleared", actor.DisplayName())
	}

	if ticket.Status == domain.TicketStatusOpen && len(assignees) > 0 {
		matched, err := s.tickets.UpdateStatus(ctx, ticket.UUID, domain.TicketStatusOpen, domain.TicketStatusInProgress, nil)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if matched {
			ticket.Status = domain.TicketStatusInProgress
			s.appendFeed(ctx, ticket.UUID,
				fmt.Sprintf("Status changed from %s to %s", domain.TicketStatusOpen, domain.TicketStatusInProgress),
				actor.DisplayName())
		}
		// A CAS miss here means another staff member already moved the
		// ticket; the assignment itself stands.
	}

	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketAssigned,
		TicketUUID: ticket.UUID,
		Actor:      staffEventActor(actor),
		Payload:    events.TicketAssignedPayload{AssignedUUIDs: assignees},
	})
	return ticket, nil
}

// Delete removes an open ticket and its messages, feed and attachments as
// one unit. Tickets past open must be closed instead.
func (s *TicketService) Delete(ctx context.Context, actor *domain.Actor, ticketUUID string) error {
	if !actor.IsStaff() {
		return apperrors.NewForbidden("only staff may delete tickets")
	}
	ticket, err := s.loadTicket(ctx, ticketUUID)
	if err != nil {
		return err
	}
	if ticket.Status != domain.TicketStatusOpen {
		return apperrors.NewInvalidState("only open tickets can be deleted", map[string]any{"status": ticket.Status})
	}
	matched, err := s.tickets.DeleteCascade(ctx, ticket.UUID, domain.TicketStatusOpen)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !matched {
		return apperrors.NewConflict("ticket changed concurrently", nil)
	}
	s.publishEvent(ctx, events.Event{
		Type:       events.EventTicketDeleted,
		TicketUUID: ticket.UUID,
		Actor:      staffEventActor(actor),
		Payload:    events.TicketDeletedPayload{Title: ticket.Title},
	})
	return nil
}

// ListUserTickets returns every ticket the user opened, across all
// statuses. Staff may list any user's tickets; users only their own.
func (s *TicketService) ListUserTickets(ctx context.Context, actor *domain.Actor, userUUID string) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !actor.IsStaff() && actor.UUID != userUUID {
		return nil, apperrors.NewForbidden("cannot list another user's tickets")
	}
	tickets, err := s.tickets.ListByUser(ctx, userUUID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

const minSearchLen = 3

// SearchTickets matches the term against titles, descriptions, categories
// and guest emails across all statuses.
func (s *TicketService) SearchTickets(ctx context.Context, actor *domain.Actor, term string, limit int) ([]domain.Ticket, error) {
	if !actor.IsStaff() {
		return nil, apperrors.NewForbidden("only staff may search tickets")
	}
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minSearchLen {
		return nil, apperrors.NewValidationError("search term too short", map[string]any{"min": minSearchLen})
	}
	tickets, err := s.tickets.Search(ctx, term, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketUUID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByUUID(ctx, ticketUUID)
	if err != nil {
		return nil, mapTicketErr(err, ticketUUID)
	}
	return ticket, nil
}

func (s *TicketService) appendFeed(ctx context.Context, ticketUUID, action, blame string) {
	entry := domain.TicketFeedEntry{
		Action: action,
		Blame:  blame,
		Date:   time.Now().UTC(),
	}
	_ = s.feed.Append(ctx, ticketUUID, entry)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func validateCreateInput(input *TicketCreateInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return apperrors.NewValidationError("title required", nil)
	}
	if strings.TrimSpace(input.Description) == "" {
		return apperrors.NewValidationError("description required", nil)
	}
	if len(input.Description) > maxDescriptionLen {
		return apperrors.NewValidationError("description too long", map[string]any{"max": maxDescriptionLen})
	}
	if strings.TrimSpace(input.Category) == "" {
		return apperrors.NewValidationError("category required", nil)
	}
	if !domain.ValidPriority(input.Priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if (input.UserUUID == nil) == (input.Guest == nil) {
		return apperrors.NewValidationError("exactly one of user or guest must be provided", nil)
	}
	if input.Guest != nil && strings.TrimSpace(input.Guest.Email) == "" {
		return apperrors.NewValidationError("guest email required", nil)
	}
	if input.CapturedURL != nil {
		parsed, err := url.Parse(*input.CapturedURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return apperrors.NewValidationError("capturedURL must be a valid URL", nil)
		}
	}
	return nil
}

func creatorDisplay(ticket *domain.Ticket) string {
	if ticket.Guest != nil {
		return ticket.Guest.Email
	}
	if ticket.UserUUID != nil {
		return *ticket.UserUUID
	}
	return "unknown"
}

func creatorEventActor(ticket *domain.Ticket) events.Actor {
	if ticket.Guest != nil {
		email := ticket.Guest.Email
		return events.Actor{Type: domain.SubjectTypeUser, GuestEmail: &email}
	}
	return events.Actor{Type: domain.SubjectTypeUser, UUID: ticket.UserUUID}
}

func staffEventActor(actor *domain.Actor) events.Actor {
	uuidCopy := actor.UUID
	return events.Actor{Type: domain.SubjectTypeStaff, UUID: &uuidCopy}
}

func mapTicketErr(err error, ticketUUID string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{"uuid": ticketUUID})
	}
	return apperrors.MapError(err)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
