package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/repository"
)

func newTestMetricsService(store *repository.MemoryStore, now time.Time) *MetricsService {
	svc := NewMetricsService(store.Tickets(), nil, time.Minute, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func seedMetricsTicket(t *testing.T, store *repository.MemoryStore, uuid string, status domain.TicketStatus, opened time.Time, closed *time.Time) {
	t.Helper()
	user := "user-1"
	require.NoError(t, store.Tickets().Create(context.Background(), &domain.Ticket{
		UUID:       uuid,
		Title:      "t",
		Category:   "general",
		Priority:   domain.TicketPriorityMedium,
		Status:     status,
		UserUUID:   &user,
		TimeOpened: opened,
		TimeClosed: closed,
	}))
}

func TestComputeMetricsEmpty(t *testing.T) {
	svc := newTestMetricsService(repository.NewMemoryStore(), time.Now().UTC())

	metrics, err := svc.ComputeMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SupportMetrics{}, metrics)
}

func TestComputeMetrics(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore()
	svc := newTestMetricsService(store, now)

	// Two active tickets, one opened inside the trailing week.
	seedMetricsTicket(t, store, "a", domain.TicketStatusOpen, now.Add(-2*time.Hour), nil)
	seedMetricsTicket(t, store, "b", domain.TicketStatusInProgress, now.AddDate(0, 0, -9), nil)

	// Closed tickets resolve in 20 and 40 minutes.
	closedA := now.Add(-time.Hour).Add(20 * time.Minute)
	seedMetricsTicket(t, store, "c", domain.TicketStatusClosed, now.Add(-time.Hour), &closedA)
	closedB := now.AddDate(0, 0, -8).Add(40 * time.Minute)
	seedMetricsTicket(t, store, "d", domain.TicketStatusClosed, now.AddDate(0, 0, -8), &closedB)

	metrics, err := svc.ComputeMetrics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, metrics.TotalOpenTickets)
	assert.EqualValues(t, 2, metrics.LastSevenTicketCount)
	assert.InDelta(t, 30, metrics.AvgMinsToClose, 0.01)
}

func TestComputeMetricsWeekWindowBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := repository.NewMemoryStore()
	svc := newTestMetricsService(store, now)

	// Exactly seven days ago is inside the window; "now" itself is not.
	seedMetricsTicket(t, store, "edge-old", domain.TicketStatusOpen, now.AddDate(0, 0, -7), nil)
	seedMetricsTicket(t, store, "edge-now", domain.TicketStatusOpen, now, nil)
	seedMetricsTicket(t, store, "inside", domain.TicketStatusOpen, now.Add(-time.Minute), nil)

	metrics, err := svc.ComputeMetrics(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, metrics.LastSevenTicketCount)
}
