package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/conductor-oer/support-service/internal/api/dto"
	"github.com/conductor-oer/support-service/internal/auth"
	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/service"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

// TicketsHandler manages the public ticket endpoints: creation, single
// ticket reads and the message thread. Callers may be staff, users or
// guests holding an access key.
type TicketsHandler struct {
	tickets  *service.TicketService
	messages *service.MessageService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, messages *service.MessageService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, messages: messages}
}

// CreateTicket POST /support/ticket.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		Apps:        req.Apps,
		CapturedURL: req.CapturedURL,
		Attachments: req.Attachments,
	}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		uuidCopy := principal.UUID
		input.UserUUID = &uuidCopy
	} else if req.User != nil {
		return apperrors.NewUnauthorized("authentication required to open a ticket as a user")
	}
	if req.Guest != nil {
		if input.UserUUID != nil {
			return apperrors.NewValidationError("guest and user are mutually exclusive", nil)
		}
		input.Guest = &service.GuestInput{
			FirstName:    req.Guest.FirstName,
			LastName:     req.Guest.LastName,
			Email:        req.Guest.Email,
			Organization: req.Guest.Organization,
		}
	}

	ticket, accessKey, err := h.tickets.CreateTicket(c.UserContext(), input)
	if err != nil {
		return err
	}
	body := fiber.Map{"ticket": ticketResponse(ticket)}
	if accessKey != "" {
		// Returned exactly once; only the hash is retained server-side.
		body["accessKey"] = accessKey
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

// GetTicket GET /support/ticket/:uuid.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("uuid"), actor, c.Query("accessKey"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketResponse(ticket)})
}

// PostMessage POST /support/ticket/:uuid/message.
func (h *TicketsHandler) PostMessage(c *fiber.Ctx) error {
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msgType := domain.MessageTypeGeneral
	if req.Type != nil {
		msgType = *req.Type
	}

	sender := service.MessageSender{Actor: actorFromContext(c)}
	if sender.Actor == nil && req.SenderEmail != nil {
		sender.GuestEmail = *req.SenderEmail
	}

	msg, err := h.messages.PostMessage(c.UserContext(), c.Params("uuid"), sender, req.Message, req.Attachments, msgType)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": messageResponse(msg)})
}

// ListUserTickets GET /support/ticket/user/:uuid.
func (h *TicketsHandler) ListUserTickets(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListUserTickets(c.UserContext(), actorFromContext(c), c.Params("uuid"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"tickets": items})
}

// ListMessages GET /support/ticket/:uuid/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("uuid"), actor, c.Query("accessKey"))
	if err != nil {
		return err
	}
	msgs, err := h.messages.ListMessages(c.UserContext(), ticket.UUID, actor.IsStaff())
	if err != nil {
		return err
	}
	items := make([]dto.TicketMessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"messages": items})
}

func actorFromContext(c *fiber.Ctx) *domain.Actor {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil
	}
	return &domain.Actor{
		Type:      principal.SubjectType,
		UUID:      principal.UUID,
		FirstName: principal.FirstName,
		Role:      principal.Role,
	}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	resp := dto.TicketResponse{
		UUID:          ticket.UUID,
		Title:         ticket.Title,
		Description:   ticket.Description,
		Category:      ticket.Category,
		Priority:      ticket.Priority,
		Status:        ticket.Status,
		CapturedURL:   ticket.CapturedURL,
		Apps:          ticket.Apps,
		AssignedUUIDs: ticket.AssignedUUIDs,
		User:          ticket.UserUUID,
		TimeOpened:    ticket.TimeOpened,
		TimeClosed:    ticket.TimeClosed,
		Feed:          make([]dto.FeedEntryResponse, 0, len(ticket.Feed)),
		Attachments:   make([]dto.AttachmentResponse, 0, len(ticket.Attachments)),
	}
	if resp.AssignedUUIDs == nil {
		resp.AssignedUUIDs = []string{}
	}
	if ticket.Guest != nil {
		resp.Guest = &dto.GuestResponse{
			FirstName:    ticket.Guest.FirstName,
			LastName:     ticket.Guest.LastName,
			Email:        ticket.Guest.Email,
			Organization: ticket.Guest.Organization,
		}
	}
	for _, entry := range ticket.Feed {
		resp.Feed = append(resp.Feed, dto.FeedEntryResponse{
			Action: entry.Action,
			Blame:  entry.Blame,
			Date:   entry.Date,
		})
	}
	for _, att := range ticket.Attachments {
		resp.Attachments = append(resp.Attachments, dto.AttachmentResponse{
			UUID:         att.UUID,
			Name:         att.Name,
			UploadedBy:   att.UploadedBy,
			UploadedDate: att.UploadedDate,
		})
	}
	return resp
}

func messageResponse(msg *domain.TicketMessage) dto.TicketMessageResponse {
	return dto.TicketMessageResponse{
		UUID:          msg.UUID,
		Ticket:        msg.TicketUUID,
		Message:       msg.Body,
		Attachments:   msg.Attachments,
		SenderUUID:    msg.SenderUUID,
		SenderEmail:   msg.SenderEmail,
		SenderIsStaff: msg.SenderIsStaff,
		Type:          msg.Type,
		TimeSent:      msg.TimeSent,
	}
}
