package domain

import "time"

// TicketMessageType differentiates staff-only notes from the public thread.
type TicketMessageType string

const (
	MessageTypeInternal TicketMessageType = "internal"
	MessageTypeGeneral  TicketMessageType = "general"
)

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t TicketMessageType) bool {
	return t == MessageTypeInternal || t == MessageTypeGeneral
}

// TicketMessage is one entry in a ticket's append-only thread. Exactly one
// of SenderUUID and SenderEmail is present. Seq is assigned by the store
// and breaks ordering ties when wall-clock timestamps collide.
type TicketMessage struct {
	UUID          string
	TicketUUID    string
	Body          string
	Attachments   []string
	SenderUUID    *string
	SenderEmail   *string
	SenderIsStaff bool
	Type          TicketMessageType
	Seq           int64
	TimeSent      time.Time
}
