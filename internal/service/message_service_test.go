package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/repository"
)

type messageFixture struct {
	store    *repository.MemoryStore
	tickets  *TicketService
	messages *MessageService
}

func newMessageFixture() *messageFixture {
	store := repository.NewMemoryStore()
	return &messageFixture{
		store:    store,
		tickets:  newTestTicketService(store),
		messages: NewMessageService(store.Tickets(), store.Messages(), nil),
	}
}

func (f *messageFixture) guestTicket(t *testing.T, email string) *domain.Ticket {
	t.Helper()
	input := userCreateInput("")
	input.UserUUID = nil
	input.Guest = &GuestInput{FirstName: "Grace", Email: email}
	ticket, _, err := f.tickets.CreateTicket(context.Background(), input)
	require.NoError(t, err)
	return ticket
}

func TestPostMessageBySenderKind(t *testing.T) {
	ctx := context.Background()

	t.Run("staff may post internal and general", func(t *testing.T) {
		f := newMessageFixture()
		ticket, _, err := f.tickets.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		sender := MessageSender{Actor: staffActor("staff-1")}
		internal, err := f.messages.PostMessage(ctx, ticket.UUID, sender, "internal note", nil, domain.MessageTypeInternal)
		require.NoError(t, err)
		assert.True(t, internal.SenderIsStaff)
		require.NotNil(t, internal.SenderUUID)
		assert.Equal(t, "staff-1", *internal.SenderUUID)

		_, err = f.messages.PostMessage(ctx, ticket.UUID, sender, "reply to user", nil, domain.MessageTypeGeneral)
		require.NoError(t, err)
	})

	t.Run("owning user posts general only", func(t *testing.T) {
		f := newMessageFixture()
		ticket, _, err := f.tickets.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		sender := MessageSender{Actor: userActor("user-1")}
		msg, err := f.messages.PostMessage(ctx, ticket.UUID, sender, "any update?", nil, domain.MessageTypeGeneral)
		require.NoError(t, err)
		assert.False(t, msg.SenderIsStaff)

		_, err = f.messages.PostMessage(ctx, ticket.UUID, sender, "sneaky", nil, domain.MessageTypeInternal)
		assertDomainCode(t, err, "FORBIDDEN")
	})

	t.Run("other user forbidden", func(t *testing.T) {
		f := newMessageFixture()
		ticket, _, err := f.tickets.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		_, err = f.messages.PostMessage(ctx, ticket.UUID, MessageSender{Actor: userActor("user-2")}, "hi", nil, domain.MessageTypeGeneral)
		assertDomainCode(t, err, "FORBIDDEN")
	})

	t.Run("guest email must match ticket guest", func(t *testing.T) {
		f := newMessageFixture()
		ticket := f.guestTicket(t, "grace@example.com")

		msg, err := f.messages.PostMessage(ctx, ticket.UUID, MessageSender{GuestEmail: "Grace@Example.com"}, "still broken", nil, domain.MessageTypeGeneral)
		require.NoError(t, err)
		require.NotNil(t, msg.SenderEmail)
		assert.Equal(t, "grace@example.com", *msg.SenderEmail)

		_, err = f.messages.PostMessage(ctx, ticket.UUID, MessageSender{GuestEmail: "other@example.com"}, "hi", nil, domain.MessageTypeGeneral)
		assertDomainCode(t, err, "FORBIDDEN")
	})

	t.Run("anonymous without email unauthorized", func(t *testing.T) {
		f := newMessageFixture()
		ticket := f.guestTicket(t, "grace@example.com")

		_, err := f.messages.PostMessage(ctx, ticket.UUID, MessageSender{}, "hi", nil, domain.MessageTypeGeneral)
		assertDomainCode(t, err, "UNAUTHORIZED")
	})

	t.Run("empty body rejected", func(t *testing.T) {
		f := newMessageFixture()
		ticket, _, err := f.tickets.CreateTicket(ctx, userCreateInput("user-1"))
		require.NoError(t, err)

		_, err = f.messages.PostMessage(ctx, ticket.UUID, MessageSender{Actor: staffActor("staff-1")}, "   ", nil, domain.MessageTypeGeneral)
		assertDomainCode(t, err, "VALIDATION_FAILED")
	})

	t.Run("unknown ticket not found", func(t *testing.T) {
		f := newMessageFixture()
		_, err := f.messages.PostMessage(ctx, "missing", MessageSender{Actor: staffActor("staff-1")}, "hi", nil, domain.MessageTypeGeneral)
		assertDomainCode(t, err, "NOT_FOUND")
	})
}

func TestPostMessageNeverChangesStatus(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture()
	ticket, _, err := f.tickets.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)
	_, err = f.tickets.UpdateStatus(ctx, staffActor("staff-1"), ticket.UUID, domain.TicketStatusClosed)
	require.NoError(t, err)

	// Replies to a closed ticket land in the thread without reopening it.
	_, err = f.messages.PostMessage(ctx, ticket.UUID, MessageSender{Actor: userActor("user-1")}, "thanks!", nil, domain.MessageTypeGeneral)
	require.NoError(t, err)

	current, err := f.store.Tickets().GetByUUID(ctx, ticket.UUID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, current.Status)
	require.NotNil(t, current.TimeClosed)
}

func TestListMessagesFiltersInternalForNonStaff(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture()
	ticket, _, err := f.tickets.CreateTicket(ctx, userCreateInput("user-1"))
	require.NoError(t, err)

	staff := MessageSender{Actor: staffActor("staff-1")}
	_, err = f.messages.PostMessage(ctx, ticket.UUID, staff, "public reply", nil, domain.MessageTypeGeneral)
	require.NoError(t, err)
	_, err = f.messages.PostMessage(ctx, ticket.UUID, staff, "internal note", nil, domain.MessageTypeInternal)
	require.NoError(t, err)
	_, err = f.messages.PostMessage(ctx, ticket.UUID, MessageSender{Actor: userActor("user-1")}, "user reply", nil, domain.MessageTypeGeneral)
	require.NoError(t, err)

	all, err := f.messages.ListMessages(ctx, ticket.UUID, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "public reply", all[0].Body)
	assert.Equal(t, "internal note", all[1].Body)
	assert.Equal(t, "user reply", all[2].Body)

	visible, err := f.messages.ListMessages(ctx, ticket.UUID, false)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "public reply", visible[0].Body)
	assert.Equal(t, "user reply", visible[1].Body)
}

func TestBodyPreview(t *testing.T) {
	assert.Equal(t, "short", bodyPreview("short", 120))
	long := ""
	for i := 0; i < 50; i++ {
		long += "abc"
	}
	preview := bodyPreview(long, 120)
	assert.Len(t, preview, 120)
	assert.Equal(t, "...", preview[117:])

	// Multi-byte text truncates on rune boundaries.
	accented := strings.Repeat("é", 50)
	preview = bodyPreview(accented, 10)
	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, strings.Repeat("é", 7)+"...", preview)
	assert.Equal(t, 10, utf8.RuneCountInString(preview))
}
