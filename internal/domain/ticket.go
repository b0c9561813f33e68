package domain

import "time"

// TicketStatus enumerates lifecycle states for support tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// ValidPriority reports whether p is one of the known priorities.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// PriorityRank orders priorities for sorting, low first.
func PriorityRank(p TicketPriority) int {
	switch p {
	case TicketPriorityLow:
		return 0
	case TicketPriorityMedium:
		return 1
	case TicketPriorityHigh:
		return 2
	}
	return 3
}

// allowedTransitions is the single source of truth for the ticket state
// machine. A ticket never transitions back into open; closed tickets are
// re-openable into in_progress only.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusInProgress, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusClosed},
	TicketStatusClosed:     {TicketStatusInProgress},
}

// CanTransition reports whether next is reachable from current.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TicketGuest identifies an unauthenticated submitter.
type TicketGuest struct {
	FirstName    string
	LastName     string
	Email        string
	Organization string
}

// TicketFeedEntry is an immutable audit-log line on a ticket.
type TicketFeedEntry struct {
	Action string
	Blame  string
	Date   time.Time
}

// TicketAttachment stores metadata for binary content held by the
// external object store.
type TicketAttachment struct {
	UUID         string
	Name         string
	UploadedBy   string
	UploadedDate time.Time
}

// Ticket is the aggregate for support requests. Exactly one of UserUUID
// and Guest is present.
type Ticket struct {
	UUID               string
	Title              string
	Description        string
	Category           string
	Priority           TicketPriority
	Status             TicketStatus
	CapturedURL        *string
	Apps               []int64
	AssignedUUIDs      []string
	UserUUID           *string
	Guest              *TicketGuest
	GuestAccessKeyHash *string
	TimeOpened         time.Time
	TimeClosed         *time.Time
	Feed               []TicketFeedEntry
	Attachments        []TicketAttachment
}

// IsGuestTicket reports whether the ticket was opened by a guest.
func (t *Ticket) IsGuestTicket() bool {
	return t.Guest != nil
}

// OwnedBy reports whether the given authenticated user opened the ticket.
func (t *Ticket) OwnedBy(userUUID string) bool {
	return t.UserUUID != nil && *t.UserUUID == userUUID
}
