package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/conductor-oer/support-service/internal/domain"
)

// MemoryStore backs all ticket repositories with in-process maps. It is
// used when no Postgres DSN is configured and by the unit tests. Writes
// are serialized by a single mutex, which also gives the compare-and-set
// status update the same semantics as the SQL implementation.
type MemoryStore struct {
	mu          sync.Mutex
	tickets     map[string]*domain.Ticket
	messages    map[string][]domain.TicketMessage
	feed        map[string][]domain.TicketFeedEntry
	attachments map[string][]domain.TicketAttachment
	nextSeq     int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:     make(map[string]*domain.Ticket),
		messages:    make(map[string][]domain.TicketMessage),
		feed:        make(map[string][]domain.TicketFeedEntry),
		attachments: make(map[string][]domain.TicketAttachment),
	}
}

// Tickets returns the store as a TicketRepository.
func (s *MemoryStore) Tickets() TicketRepository { return (*memoryTickets)(s) }

// Messages returns the store as a TicketMessageRepository.
func (s *MemoryStore) Messages() TicketMessageRepository { return (*memoryMessages)(s) }

// Feed returns the store as a TicketFeedRepository.
func (s *MemoryStore) Feed() TicketFeedRepository { return (*memoryFeed)(s) }

// Attachments returns the store as an AttachmentRepository.
func (s *MemoryStore) Attachments() AttachmentRepository { return (*memoryAttachments)(s) }

type memoryTickets MemoryStore

func (r *memoryTickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *ticket
	r.tickets[ticket.UUID] = &copied
	return nil
}

func (r *memoryTickets) GetByUUID(ctx context.Context, uuid string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[uuid]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *memoryTickets) Query(ctx context.Context, filter TicketFilter) (TicketPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]domain.Ticket, 0)
	for _, ticket := range r.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		matched = append(matched, *ticket)
	}
	sortTickets(matched, filter.Sort)

	total := int64(len(matched))
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return TicketPage{Items: []domain.Ticket{}, Total: total}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return TicketPage{Items: matched[offset:end], Total: total}, nil
}

func (r *memoryTickets) ListByUser(ctx context.Context, userUUID string) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]domain.Ticket, 0)
	for _, ticket := range r.tickets {
		if ticket.UserUUID != nil && *ticket.UserUUID == userUUID {
			matched = append(matched, *ticket)
		}
	}
	sortTickets(matched, SortByOpened)
	return matched, nil
}

func (r *memoryTickets) Search(ctx context.Context, term string, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 25
	}
	needle := strings.ToLower(term)
	matched := make([]domain.Ticket, 0)
	for _, ticket := range r.tickets {
		if matchesSearch(ticket, needle) || ticket.UUID == term {
			matched = append(matched, *ticket)
		}
	}
	sortTickets(matched, SortByOpened)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func matchesSearch(ticket *domain.Ticket, needle string) bool {
	if strings.Contains(strings.ToLower(ticket.Title), needle) ||
		strings.Contains(strings.ToLower(ticket.Description), needle) ||
		strings.Contains(strings.ToLower(ticket.Category), needle) {
		return true
	}
	return ticket.Guest != nil && strings.Contains(strings.ToLower(ticket.Guest.Email), needle)
}

func (r *memoryTickets) UpdateStatus(ctx context.Context, uuid string, from, to domain.TicketStatus, timeClosed *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[uuid]
	if !ok || ticket.Status != from {
		return false, nil
	}
	ticket.Status = to
	ticket.TimeClosed = timeClosed
	return true, nil
}

func (r *memoryTickets) UpdatePriority(ctx context.Context, uuid string, priority domain.TicketPriority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[uuid]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Priority = priority
	return nil
}

func (r *memoryTickets) UpdateAssignees(ctx context.Context, uuid string, assignees []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[uuid]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.AssignedUUIDs = append([]string{}, assignees...)
	return nil
}

func (r *memoryTickets) DeleteCascade(ctx context.Context, uuid string, guardStatus domain.TicketStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[uuid]
	if !ok || ticket.Status != guardStatus {
		return false, nil
	}
	delete(r.tickets, uuid)
	delete(r.messages, uuid)
	delete(r.feed, uuid)
	delete(r.attachments, uuid)
	return true, nil
}

func (r *memoryTickets) CountByStatuses(ctx context.Context, statuses []domain.TicketStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, ticket := range r.tickets {
		for _, status := range statuses {
			if ticket.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *memoryTickets) CountOpenedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, ticket := range r.tickets {
		if !ticket.TimeOpened.Before(from) && ticket.TimeOpened.Before(to) {
			count++
		}
	}
	return count, nil
}

func (r *memoryTickets) AvgMinutesToClose(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum float64
	var n int
	for _, ticket := range r.tickets {
		if ticket.Status != domain.TicketStatusClosed || ticket.TimeClosed == nil {
			continue
		}
		sum += ticket.TimeClosed.Sub(ticket.TimeOpened).Minutes()
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

type memoryMessages MemoryStore

func (r *memoryMessages) Create(ctx context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSeq++
	msg.Seq = r.nextSeq
	r.messages[msg.TicketUUID] = append(r.messages[msg.TicketUUID], *msg)
	return nil
}

func (r *memoryMessages) ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append([]domain.TicketMessage{}, r.messages[ticketUUID]...)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].TimeSent.Equal(msgs[j].TimeSent) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].TimeSent.Before(msgs[j].TimeSent)
	})
	return msgs, nil
}

type memoryFeed MemoryStore

func (r *memoryFeed) Append(ctx context.Context, ticketUUID string, entry domain.TicketFeedEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feed[ticketUUID] = append(r.feed[ticketUUID], entry)
	return nil
}

func (r *memoryFeed) ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketFeedEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TicketFeedEntry{}, r.feed[ticketUUID]...), nil
}

type memoryAttachments MemoryStore

func (r *memoryAttachments) Create(ctx context.Context, ticketUUID string, attachment *domain.TicketAttachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments[ticketUUID] = append(r.attachments[ticketUUID], *attachment)
	return nil
}

func (r *memoryAttachments) ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketAttachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TicketAttachment{}, r.attachments[ticketUUID]...), nil
}

func matchesFilter(ticket *domain.Ticket, filter TicketFilter) bool {
	switch filter.Partition {
	case PartitionClosed:
		if ticket.Status != domain.TicketStatusClosed {
			return false
		}
	default:
		if ticket.Status != domain.TicketStatusOpen && ticket.Status != domain.TicketStatusInProgress {
			return false
		}
	}
	if filter.Assignee != nil {
		found := false
		for _, assignee := range ticket.AssignedUUIDs {
			if assignee == *filter.Assignee {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Priority != nil && ticket.Priority != *filter.Priority {
		return false
	}
	if filter.Category != nil && ticket.Category != *filter.Category {
		return false
	}
	return true
}

func sortTickets(tickets []domain.Ticket, key TicketSortKey) {
	less := func(a, b *domain.Ticket) bool {
		switch key {
		case SortByPriority:
			if domain.PriorityRank(a.Priority) != domain.PriorityRank(b.Priority) {
				return domain.PriorityRank(a.Priority) < domain.PriorityRank(b.Priority)
			}
		case SortByStatus:
			if a.Status != b.Status {
				return a.Status < b.Status
			}
		case SortByCategory:
			ca, cb := strings.ToLower(a.Category), strings.ToLower(b.Category)
			if ca != cb {
				return ca < cb
			}
		default:
			if !a.TimeOpened.Equal(b.TimeOpened) {
				return a.TimeOpened.Before(b.TimeOpened)
			}
		}
		return a.UUID < b.UUID
	}
	sort.Slice(tickets, func(i, j int) bool {
		return less(&tickets[i], &tickets[j])
	})
}
