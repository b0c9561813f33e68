package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conductor-oer/support-service/internal/api/dto"
	"github.com/conductor-oer/support-service/internal/repository"
	"github.com/conductor-oer/support-service/internal/service"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

// StaffTicketsHandler handles the staff dashboard and mutation endpoints.
// Routes are mounted behind the staff role guard.
type StaffTicketsHandler struct {
	tickets *service.TicketService
	metrics *service.MetricsService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(tickets *service.TicketService, metrics *service.MetricsService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: tickets, metrics: metrics}
}

// ListOpenTickets GET /support/ticket/open.
func (h *StaffTicketsHandler) ListOpenTickets(c *fiber.Ctx) error {
	return h.listDashboard(c, repository.PartitionActive)
}

// ListClosedTickets GET /support/ticket/closed.
func (h *StaffTicketsHandler) ListClosedTickets(c *fiber.Ctx) error {
	return h.listDashboard(c, repository.PartitionClosed)
}

func (h *StaffTicketsHandler) listDashboard(c *fiber.Ctx, partition repository.TicketPartition) error {
	query := service.DashboardQuery{
		Partition: partition,
		Page:      parseInt(c.Query("page"), 1),
		Limit:     parseInt(c.Query("limit"), 25),
		Sort:      c.Query("sort"),
		Assignee:  c.Query("assignee"),
		Priority:  c.Query("priority"),
		Category:  c.Query("category"),
	}
	page, err := h.tickets.ListDashboard(c.UserContext(), query)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Tickets))
	for i := range page.Tickets {
		items = append(items, ticketResponse(&page.Tickets[i]))
	}
	return c.JSON(fiber.Map{
		"tickets":       items,
		"total":         page.Total,
		"filterOptions": page.FilterOptions,
	})
}

// SearchTickets GET /support/ticket/search.
func (h *StaffTicketsHandler) SearchTickets(c *fiber.Ctx) error {
	tickets, err := h.tickets.SearchTickets(c.UserContext(), actorFromContext(c), c.Query("query"), parseInt(c.Query("limit"), 25))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"tickets": items})
}

// UpdateTicket PATCH /support/ticket/:uuid.
func (h *StaffTicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Priority == nil && req.Status == nil {
		return apperrors.NewValidationError("nothing to update", nil)
	}
	actor := actorFromContext(c)
	ticketUUID := c.Params("uuid")

	if req.Priority != nil {
		if _, err := h.tickets.UpdatePriority(c.UserContext(), actor, ticketUUID, *req.Priority); err != nil {
			return err
		}
	}
	if req.Status != nil {
		if _, err := h.tickets.UpdateStatus(c.UserContext(), actor, ticketUUID, *req.Status); err != nil {
			return err
		}
	}

	ticket, err := h.tickets.GetTicket(c.UserContext(), ticketUUID, actor, "")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketResponse(ticket)})
}

// AssignTicket POST /support/ticket/:uuid/assign.
func (h *StaffTicketsHandler) AssignTicket(c *fiber.Ctx) error {
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Assign(c.UserContext(), actorFromContext(c), c.Params("uuid"), req.AssigneeUUIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ticket": ticketResponse(ticket)})
}

// DeleteTicket DELETE /support/ticket/:uuid.
func (h *StaffTicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.tickets.Delete(c.UserContext(), actorFromContext(c), c.Params("uuid")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMetrics GET /support/metrics.
func (h *StaffTicketsHandler) GetMetrics(c *fiber.Ctx) error {
	metrics, err := h.metrics.ComputeMetrics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"metrics": metrics})
}
