package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/repository"
)

func createDashboardTicket(t *testing.T, svc *TicketService, category string, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	input := userCreateInput("user-1")
	input.Category = category
	input.Priority = priority
	ticket, _, err := svc.CreateTicket(context.Background(), input)
	require.NoError(t, err)
	return ticket
}

func TestListDashboardPartitions(t *testing.T) {
	ctx := context.Background()
	svc := newTestTicketService(repository.NewMemoryStore())

	open := createDashboardTicket(t, svc, "technical", domain.TicketPriorityLow)
	inProgress := createDashboardTicket(t, svc, "billing", domain.TicketPriorityHigh)
	toClose := createDashboardTicket(t, svc, "access", domain.TicketPriorityMedium)

	staff := staffActor("staff-1")
	_, err := svc.UpdateStatus(ctx, staff, inProgress.UUID, domain.TicketStatusInProgress)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, staff, toClose.UUID, domain.TicketStatusClosed)
	require.NoError(t, err)

	active, err := svc.ListDashboard(ctx, DashboardQuery{Partition: repository.PartitionActive})
	require.NoError(t, err)
	assert.EqualValues(t, 2, active.Total)
	uuids := map[string]bool{}
	for _, ticket := range active.Tickets {
		uuids[ticket.UUID] = true
	}
	assert.True(t, uuids[open.UUID])
	assert.True(t, uuids[inProgress.UUID])

	closed, err := svc.ListDashboard(ctx, DashboardQuery{Partition: repository.PartitionClosed})
	require.NoError(t, err)
	require.Len(t, closed.Tickets, 1)
	assert.Equal(t, toClose.UUID, closed.Tickets[0].UUID)
}

func TestListDashboardValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestTicketService(repository.NewMemoryStore())

	_, err := svc.ListDashboard(ctx, DashboardQuery{Partition: repository.PartitionActive, Sort: "age"})
	assertDomainCode(t, err, "VALIDATION_FAILED")

	_, err = svc.ListDashboard(ctx, DashboardQuery{Partition: repository.PartitionActive, Priority: "urgent"})
	assertDomainCode(t, err, "VALIDATION_FAILED")
}

func TestListDashboardPaging(t *testing.T) {
	ctx := context.Background()
	svc := newTestTicketService(repository.NewMemoryStore())
	for i := 0; i < 5; i++ {
		createDashboardTicket(t, svc, "technical", domain.TicketPriorityMedium)
	}

	page, err := svc.ListDashboard(ctx, DashboardQuery{Partition: repository.PartitionActive, Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Len(t, page.Tickets, 2)

	// Page defaults to 1 when out of range input arrives.
	page, err = svc.ListDashboard(ctx, DashboardQuery{Partition: repository.PartitionActive, Page: -3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Tickets, 2)
}

func TestBuildFilterOptions(t *testing.T) {
	tickets := []domain.Ticket{
		{Category: "billing", Priority: domain.TicketPriorityHigh, AssignedUUIDs: []string{"staff-2", "staff-1"}},
		{Category: "access", Priority: domain.TicketPriorityHigh, AssignedUUIDs: []string{"staff-1"}},
		{Category: "billing", Priority: domain.TicketPriorityLow},
	}

	options := BuildFilterOptions(tickets)

	// Each list opens with the synthetic Clear entry.
	require.NotEmpty(t, options.CategoryOptions)
	assert.Equal(t, FilterOption{Key: "", Text: "Clear", Value: ""}, options.CategoryOptions[0])
	assert.Equal(t, FilterOption{Key: "", Text: "Clear", Value: ""}, options.PriorityOptions[0])
	assert.Equal(t, FilterOption{Key: "", Text: "Clear", Value: ""}, options.AssigneeOptions[0])

	// Duplicates collapse and values sort case-insensitively.
	require.Len(t, options.CategoryOptions, 3)
	assert.Equal(t, "access", options.CategoryOptions[1].Key)
	assert.Equal(t, "Access", options.CategoryOptions[1].Text)
	assert.Equal(t, "billing", options.CategoryOptions[2].Key)

	require.Len(t, options.PriorityOptions, 3)
	assert.Equal(t, "high", options.PriorityOptions[1].Key)
	assert.Equal(t, "High", options.PriorityOptions[1].Text)
	assert.Equal(t, "low", options.PriorityOptions[2].Key)

	require.Len(t, options.AssigneeOptions, 3)
	assert.Equal(t, "staff-1", options.AssigneeOptions[1].Key)
	assert.Equal(t, "staff-2", options.AssigneeOptions[2].Key)
}

func TestCapitalizeFirstMultibyte(t *testing.T) {
	assert.Equal(t, "Éclair", capitalizeFirst("éclair"))
	assert.Equal(t, "Ücretsiz", capitalizeFirst("ücretsiz"))
	assert.Equal(t, "Billing", capitalizeFirst("billing"))
	assert.Equal(t, "", capitalizeFirst(""))
}

func TestBuildFilterOptionsEmptyPage(t *testing.T) {
	options := BuildFilterOptions(nil)
	assert.Len(t, options.AssigneeOptions, 1)
	assert.Len(t, options.PriorityOptions, 1)
	assert.Len(t, options.CategoryOptions, 1)
}
