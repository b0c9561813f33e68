package dto

import (
	"time"

	"github.com/conductor-oer/support-service/internal/domain"
)

// GuestRequest describes an unauthenticated submitter.
type GuestRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
}

// CreateTicketRequest payload. Exactly one of user and guest is expected.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    string                `json:"category"`
	Priority    domain.TicketPriority `json:"priority"`
	Apps        []int64               `json:"apps"`
	CapturedURL *string               `json:"capturedURL"`
	Attachments []string              `json:"attachments"`
	User        *string               `json:"user"`
	Guest       *GuestRequest         `json:"guest"`
}

// UpdateTicketRequest payload for PATCH; both fields are optional.
type UpdateTicketRequest struct {
	Priority *domain.TicketPriority `json:"priority"`
	Status   *domain.TicketStatus   `json:"status"`
}

// AssignTicketRequest payload. The list replaces the current assignees.
type AssignTicketRequest struct {
	AssigneeUUIDs []string `json:"assigneeUUIDs"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Message     string                    `json:"message"`
	Attachments []string                  `json:"attachments"`
	Type        *domain.TicketMessageType `json:"type"`
	SenderEmail *string                   `json:"senderEmail"`
}

// GuestResponse mirrors the stored guest record.
type GuestResponse struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
}

// FeedEntryResponse is one audit line.
type FeedEntryResponse struct {
	Action string    `json:"action"`
	Blame  string    `json:"blame"`
	Date   time.Time `json:"date"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	UploadedBy   string    `json:"uploadedBy"`
	UploadedDate time.Time `json:"uploadedDate"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	UUID          string                `json:"uuid"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      string                `json:"category"`
	Priority      domain.TicketPriority `json:"priority"`
	Status        domain.TicketStatus   `json:"status"`
	CapturedURL   *string               `json:"capturedURL,omitempty"`
	Apps          []int64               `json:"apps,omitempty"`
	AssignedUUIDs []string              `json:"assignedUUIDs"`
	User          *string               `json:"user,omitempty"`
	Guest         *GuestResponse        `json:"guest,omitempty"`
	TimeOpened    time.Time             `json:"timeOpened"`
	TimeClosed    *time.Time            `json:"timeClosed,omitempty"`
	Feed          []FeedEntryResponse   `json:"feed"`
	Attachments   []AttachmentResponse  `json:"attachments"`
}

// TicketMessageResponse represents one thread message.
type TicketMessageResponse struct {
	UUID          string                   `json:"uuid"`
	Ticket        string                   `json:"ticket"`
	Message       string                   `json:"message"`
	Attachments   []string                 `json:"attachments,omitempty"`
	SenderUUID    *string                  `json:"senderUUID,omitempty"`
	SenderEmail   *string                  `json:"senderEmail,omitempty"`
	SenderIsStaff bool                     `json:"senderIsStaff"`
	Type          domain.TicketMessageType `json:"type"`
	TimeSent      time.Time                `json:"timeSent"`
}
