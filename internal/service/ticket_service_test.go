package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/conductor-oer/support-service/internal/auth"
	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/events"
	"github.com/conductor-oer/support-service/internal/repository"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

func newTestTicketService(store *repository.MemoryStore) *TicketService {
	return NewTicketService(TicketDependencies{
		TicketRepo:     store.Tickets(),
		FeedRepo:       store.Feed(),
		AttachmentRepo: store.Attachments(),
		AccessKeys:     auth.NewAccessKeyManager(bcrypt.MinCost),
		Dispatcher:     events.NewInMemoryDispatcher(),
	})
}

func staffActor(uuid string) *domain.Actor {
	role := domain.StaffRoleSupport
	return &domain.Actor{Type: domain.SubjectTypeStaff, UUID: uuid, FirstName: "Ada", Role: &role}
}

func userActor(uuid string) *domain.Actor {
	return &domain.Actor{Type: domain.SubjectTypeUser, UUID: uuid}
}

func userCreateInput(userUUID string) TicketCreateInput {
	return TicketCreateInput{
		Title:       "Cannot access book",
		Description: "The reader shows a blank page.",
		Category:    "technical",
		Priority:    domain.TicketPriorityMedium,
		UserUUID:    &userUUID,
	}
}

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var derr *apperrors.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, code, derr.Code)
}

func TestCreateTicketValidation(t *testing.T) {
	svc := newTestTicketService(repository.NewMemoryStore())
	userUUID := "user-1"

	tests := []struct {
		name   string
		mutate func(*TicketCreateInput)
	}{
		{"missing title", func(in *TicketCreateInput) { in.Title = "  " }},
		{"missing description", func(in *TicketCreateInput) { in.Description = "" }},
		{"description too long", func(in *TicketCreateInput) {
			long := make([]byte, maxDescriptionLen+1)
			for i := range long {
				long[i] = 'x'
			}
			in.Description = string(long)
		}},
		{"missing category", func(in *TicketCreateInput) { in.Category = "" }},
		{"unknown priority", func(in *TicketCreateInput) { in.Priority = "urgent" }},
		{"neither user nor guest", func(in *TicketCreateInput) { in.UserUUID = nil }},
		{"both user and guest", func(in *TicketCreateInput) {
			in.Guest = &GuestInput{Email: "g@example.com"}
		}},
		{"guest without email", func(in *TicketCreateInput) {
			in.UserUUID = nil
			in.Guest = &GuestInput{FirstName: "Grace"}
		}},
		{"malformed captured url", func(in *TicketCreateInput) {
			bad := "not a url"
			in.CapturedURL = &bad
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := userCreateInput(userUUID)
			tc.mutate(&input)
			_, _, err := svc.CreateTicket(context.Background(), input)
			assertDomainCode(t, err, "VALIDATION_FAILED")
		})
	}
}

func TestCreateUserTicket(t *testing.T) {
	svc := newTestTicketService(repository.NewMemoryStore())

	input := userCreateInput("user-1")
	input.Attachments = []string{"screenshot.png"}
	captured := "https://commons.example.org/book/42"
	input.CapturedURL = &captured

	ticket, accessKey, err := svc.CreateTicket(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, accessKey)
	assert.NotEmpty(t, ticket.UUID)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.TimeClosed)
	assert.Empty(t, ticket.AssignedUUIDs)
	assert.Nil(t, ticket.Guest)
	require.Len(t, ticket.Attachments, 1)
	assert.Equal(t, "screenshot.png", ticket.Attachments[0].Name)
	assert.Equal(t, "user-1", ticket.Attachments[0].UploadedBy)
}

func TestCreateGuestTicketIssuesAccessKey(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestTicketService(store)

	input := userCreateInput("")
	input.UserUUID = nil
	input.Guest = &GuestInput{FirstName: "Grace", LastName: "Hopper", Email: "Grace@Example.COM", Organization: "Navy"}

	ticket, accessKey, err := svc.CreateTicket(context.Background(), input)
	require.NoError(t, err)
	require.NotEmpty(t, accessKey)
	require.NotNil(t, ticket.Guest)
	assert.Equal(t, "grace@example.com", ticket.Guest.Email)
	require.NotNil(t, ticket.GuestAccessKeyHash)
	assert.NotEqual(t, accessKey, *ticket.GuestAccessKeyHash)

	// The issued key authorizes reads; a wrong one does not.
	_, err = svc.GetTicket(context.Background(), ticket.UUID, nil, accessKey)
	require.NoError(t, err)
	_, err = svc.GetTicket(context.Background(), ticket.UUID, nil, "bogus")
	assertDomainCode(t, err, "UNAUTHORIZED")
}

func TestGetTicketAuthorization(t *testing.T) {
	svc := newTestTicketService(repository.NewMemoryStore())
	ticket, _, err := svc.CreateTicket(context.Background(), userCreateInput("user-1"))
	require.NoError(t, err)

	_, err = svc.GetTicket(context.Background(), ticket.UUID, userActor("user-1"), "")
	require.NoError(t, err)

	_, err = svc.GetTicket(context.Background(), ticket.UUID, staffActor("staff-1"), "")
	require.NoError(t, err)

	_, err = svc.GetTicket(context.Background(), ticket.UUID, userActor("user-2"), "")
	assertDomainCode(t, err, "UNAUTHORIZED")

	_, err = svc.GetTicket(context.Background(), "missing", staffActor("staff-1"), "")
	assertDomainCode(t, err, "NOT_FOUND")
}

func TestUpdateStatusTransitions(t *testing.T) {
	ctx := context.Background()
	staff := staffActor("staff-1")

	t.Run("open to in_progress", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		updated, err := svc.UpdateStatus(ctx, staff, ticket.UUID, domain.TicketStatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
		assert.Nil(t, updated.TimeClosed)
	})

	t.Run("close sets time_closed and reopen clears it", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		closed, err := svc.UpdateStatus(ctx, staff, ticket.UUID, domain.TicketStatusClosed)
		require.NoError(t, err)
		require.NotNil(t, closed.TimeClosed)
		assert.WithinDuration(t, time.Now().UTC(), *closed.TimeClosed, time.Minute)

		reopened, err := svc.UpdateStatus(ctx, staff, ticket.UUID, domain.TicketStatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)
		assert.Nil(t, reopened.TimeClosed)
	})

	t.Run("closed never returns to open", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, staff, ticket.UUID, domain.TicketStatusClosed)
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, staff, ticket.UUID, domain.TicketStatusOpen)
		assertDomainCode(t, err, "INVALID_TRANSITION")
	})

	t.Run("non-staff forbidden", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, userActor("user-1"), ticket.UUID, domain.TicketStatusClosed)
		assertDomainCode(t, err, "FORBIDDEN")
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, staff, ticket.UUID, "archived")
		assertDomainCode(t, err, "VALIDATION_FAILED")
	})
}

// casMissRepo simulates a concurrent writer by failing every guarded
// status update.
type casMissRepo struct {
	repository.TicketRepository
}

func (r *casMissRepo) UpdateStatus(ctx context.Context, uuid string, from, to domain.TicketStatus, timeClosed *time.Time) (bool, error) {
	return false, nil
}

func TestUpdateStatusConcurrentConflict(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestTicketService(store)
	ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)

	racy := NewTicketService(TicketDependencies{
		TicketRepo:     &casMissRepo{TicketRepository: store.Tickets()},
		FeedRepo:       store.Feed(),
		AttachmentRepo: store.Attachments(),
		AccessKeys:     auth.NewAccessKeyManager(bcrypt.MinCost),
	})
	_, err = racy.UpdateStatus(ctx, staffActor("staff-1"), ticket.UUID, domain.TicketStatusClosed)
	assertDomainCode(t, err, "CONFLICT")
}

func TestUpdatePriority(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestTicketService(store)
	ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)

	updated, err := svc.UpdatePriority(ctx, staffActor("staff-1"), ticket.UUID, domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)

	feed, err := store.Feed().ListByTicket(ctx, ticket.UUID)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Priority changed from medium to high", feed[0].Action)
	assert.Equal(t, "Ada", feed[0].Blame)

	// Setting the same priority again leaves the feed untouched.
	_, err = svc.UpdatePriority(ctx, staffActor("staff-1"), ticket.UUID, domain.TicketPriorityHigh)
	require.NoError(t, err)
	feed, err = store.Feed().ListByTicket(ctx, ticket.UUID)
	require.NoError(t, err)
	assert.Len(t, feed, 1)

	_, err = svc.UpdatePriority(ctx, userActor("user-1"), ticket.UUID, domain.TicketPriorityLow)
	assertDomainCode(t, err, "FORBIDDEN")
}

func TestAssignMovesOpenTicketToInProgress(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestTicketService(store)
	ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)

	assigned, err := svc.Assign(ctx, staffActor("staff-1"), ticket.UUID, []string{"staff-2", "staff-2", " ", "staff-3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"staff-2", "staff-3"}, assigned.AssignedUUIDs)
	assert.Equal(t, domain.TicketStatusInProgress, assigned.Status)

	feed, err := store.Feed().ListByTicket(ctx, ticket.UUID)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "Assigned to staff-2, staff-3", feed[0].Action)
	assert.Equal(t, "Status changed from open to in_progress", feed[1].Action)
}

func TestAssignEmptyListKeepsStatus(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestTicketService(store)
	ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)

	cleared, err := svc.Assign(ctx, staffActor("staff-1"), ticket.UUID, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.AssignedUUIDs)
	assert.Equal(t, domain.TicketStatusOpen, cleared.Status)

	feed, err := store.Feed().ListByTicket(ctx, ticket.UUID)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "Assignees cleared", feed[0].Action)
}

func TestAssignInProgressTicketKeepsStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestTicketService(repository.NewMemoryStore())
	ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, staffActor("staff-1"), ticket.UUID, domain.TicketStatusInProgress)
	require.NoError(t, err)

	assigned, err := svc.Assign(ctx, staffActor("staff-1"), ticket.UUID, []string{"staff-2"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, assigned.Status)
}

func TestAssignClosedTicketKeepsStatus(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := newTestTicketService(store)
	ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, staffActor("staff-1"), ticket.UUID, domain.TicketStatusClosed)
	require.NoError(t, err)

	assigned, err := svc.Assign(ctx, staffActor("staff-1"), ticket.UUID, []string{"staff-2"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, assigned.Status)
	assert.Equal(t, []string{"staff-2"}, assigned.AssignedUUIDs)

	current, err := store.Tickets().GetByUUID(ctx, ticket.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, current.Status)
	require.NotNil(t, current.TimeClosed)
}

func TestListUserTickets(t *testing.T) {
	ctx := context.Background()
	svc := newTestTicketService(repository.NewMemoryStore())

	mine, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)
	closed, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, staffActor("staff-1"), closed.UUID, domain.TicketStatusClosed)
	require.NoError(t, err)
	_, _, err = svc.CreateTicket(ctx, userCreateInput("user-2"))
	require.NoError(t, err)

	// Owners see all of their tickets regardless of status.
	tickets, err := svc.ListUserTickets(ctx, userActor("user-1"), "user-1")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	uuids := map[string]bool{}
	for _, ticket := range tickets {
		uuids[ticket.UUID] = true
	}
	assert.True(t, uuids[mine.UUID])
	assert.True(t, uuids[closed.UUID])

	// Staff may list anyone's tickets.
	tickets, err = svc.ListUserTickets(ctx, staffActor("staff-1"), "user-2")
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	_, err = svc.ListUserTickets(ctx, userActor("user-2"), "user-1")
	assertDomainCode(t, err, "FORBIDDEN")

	_, err = svc.ListUserTickets(ctx, nil, "user-1")
	assertDomainCode(t, err, "UNAUTHORIZED")
}

func TestSearchTickets(t *testing.T) {
	ctx := context.Background()
	svc := newTestTicketService(repository.NewMemoryStore())

	input := userCreateInput("user-1")
	input.Title = "LibreText import broken"
	target, _, err := svc.CreateTicket(ctx, input)
	require.NoError(t, err)
	_, _, err = svc.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)

	found, err := svc.SearchTickets(ctx, staffActor("staff-1"), "libretext", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, target.UUID, found[0].UUID)

	// Guest emails are searchable too.
	guestInput := userCreateInput("")
	guestInput.UserUUID = nil
	guestInput.Guest = &GuestInput{FirstName: "Grace", Email: "grace@example.com"}
	guest, _, err := svc.CreateTicket(ctx, guestInput)
	require.NoError(t, err)
	found, err = svc.SearchTickets(ctx, staffActor("staff-1"), "grace@", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, guest.UUID, found[0].UUID)

	_, err = svc.SearchTickets(ctx, staffActor("staff-1"), "ab", 0)
	assertDomainCode(t, err, "VALIDATION_FAILED")

	_, err = svc.SearchTickets(ctx, userActor("user-1"), "libretext", 0)
	assertDomainCode(t, err, "FORBIDDEN")
}

func TestDeleteTicket(t *testing.T) {
	ctx := context.Background()
	staff := staffActor("staff-1")

	t.Run("open ticket deletes with its children", func(t *testing.T) {
		store := repository.NewMemoryStore()
		svc := newTestTicketService(store)
		input := userCreateInput("user-1")
		input.Attachments = []string{"log.txt"}
		ticket, _, err := svc.CreateTicket(ctx, input)
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, staff, ticket.UUID))

		_, err = store.Tickets().GetByUUID(ctx, ticket.UUID)
		assert.Error(t, err)
		atts, err := store.Attachments().ListByTicket(ctx, ticket.UUID)
		require.NoError(t, err)
		assert.Empty(t, atts)
	})

	t.Run("in_progress ticket refuses deletion", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, staff, ticket.UUID, domain.TicketStatusInProgress)
		require.NoError(t, err)

		err = svc.Delete(ctx, staff, ticket.UUID)
		assertDomainCode(t, err, "INVALID_STATE")
	})

	t.Run("non-staff forbidden", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		ticket, _, err := svc.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		err = svc.Delete(ctx, userActor("user-1"), ticket.UUID)
		assertDomainCode(t, err, "FORBIDDEN")
	})

	t.Run("missing ticket not found", func(t *testing.T) {
		svc := newTestTicketService(repository.NewMemoryStore())
		err := svc.Delete(ctx, staff, "missing")
		assertDomainCode(t, err, "NOT_FOUND")
	})
}
