package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-oer/support-service/internal/domain"
)

// TicketSortKey selects the dashboard sort column.
type TicketSortKey string

const (
	SortByOpened   TicketSortKey = "opened"
	SortByPriority TicketSortKey = "priority"
	SortByStatus   TicketSortKey = "status"
	SortByCategory TicketSortKey = "category"
)

// ValidSortKey reports whether key is a known sort key.
func ValidSortKey(key TicketSortKey) bool {
	switch key {
	case SortByOpened, SortByPriority, SortByStatus, SortByCategory:
		return true
	}
	return false
}

// TicketPartition splits the collection between the two dashboards.
type TicketPartition string

const (
	// PartitionActive covers open and in_progress tickets.
	PartitionActive TicketPartition = "active"
	// PartitionClosed covers closed tickets.
	PartitionClosed TicketPartition = "closed"
)

// TicketFilter captures dashboard query parameters. Sorting is ascending
// with ticket UUID as the deterministic tie-break.
type TicketFilter struct {
	Partition TicketPartition
	Assignee  *string
	Priority  *domain.TicketPriority
	Category  *string
	Sort      TicketSortKey
	Limit     int
	Offset    int
}

// TicketPage is one window of a filtered query plus the unwindowed total.
type TicketPage struct {
	Items []domain.Ticket
	Total int64
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByUUID(ctx context.Context, uuid string) (*domain.Ticket, error)
	Query(ctx context.Context, filter TicketFilter) (TicketPage, error)
	// ListByUser returns every ticket the user opened, across all
	// statuses.
	ListByUser(ctx context.Context, userUUID string) ([]domain.Ticket, error)
	// Search matches the term against title, description, category and
	// guest email, case-insensitively.
	Search(ctx context.Context, term string, limit int) ([]domain.Ticket, error)
	// UpdateStatus performs a compare-and-set on status so concurrent
	// transitions serialize at the store. It reports whether a row matched.
	UpdateStatus(ctx context.Context, uuid string, from, to domain.TicketStatus, timeClosed *time.Time) (bool, error)
	UpdatePriority(ctx context.Context, uuid string, priority domain.TicketPriority) error
	UpdateAssignees(ctx context.Context, uuid string, assignees []string) error
	// DeleteCascade removes the ticket and its messages, feed and
	// attachment records in one transaction, guarded on the given status.
	// It reports whether the guarded delete matched a row.
	DeleteCascade(ctx context.Context, uuid string, guardStatus domain.TicketStatus) (bool, error)
	CountByStatuses(ctx context.Context, statuses []domain.TicketStatus) (int64, error)
	CountOpenedBetween(ctx context.Context, from, to time.Time) (int64, error)
	AvgMinutesToClose(ctx context.Context) (float64, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `uuid, title, description, category, priority, status, captured_url, apps,
               assigned_uuids, user_uuid, guest_first_name, guest_last_name, guest_email,
               guest_organization, guest_access_key_hash, time_opened, time_closed`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO support_tickets (uuid, title, description, category, priority, status, captured_url, apps,
            assigned_uuids, user_uuid, guest_first_name, guest_last_name, guest_email, guest_organization,
            guest_access_key_hash, time_opened)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	var guestFirst, guestLast, guestEmail, guestOrg *string
	if ticket.Guest != nil {
		guestFirst = &ticket.Guest.FirstName
		guestLast = &ticket.Guest.LastName
		guestEmail = &ticket.Guest.Email
		guestOrg = &ticket.Guest.Organization
	}
	_, err := r.pool.Exec(ctx, query,
		ticket.UUID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.CapturedURL,
		ticket.Apps,
		ticket.AssignedUUIDs,
		ticket.UserUUID,
		guestFirst,
		guestLast,
		guestEmail,
		guestOrg,
		ticket.GuestAccessKeyHash,
		ticket.TimeOpened,
	)
	return err
}

func (r *ticketRepository) GetByUUID(ctx context.Context, uuid string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM support_tickets WHERE uuid=$1`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, uuid)
	return scanTicket(row)
}

func (r *ticketRepository) Query(ctx context.Context, filter TicketFilter) (TicketPage, error) {
	clauses, args := filterClauses(filter)
	where := strings.Join(clauses, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM support_tickets WHERE %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return TicketPage{}, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM support_tickets WHERE %s ORDER BY %s LIMIT %d OFFSET %d`,
		ticketColumns, where, orderClause(filter.Sort), limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return TicketPage{}, err
	}
	defer rows.Close()

	items, err := scanTickets(rows)
	if err != nil {
		return TicketPage{}, err
	}
	return TicketPage{Items: items, Total: total}, nil
}

func (r *ticketRepository) ListByUser(ctx context.Context, userUUID string) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM support_tickets WHERE user_uuid=$1 ORDER BY time_opened ASC, uuid ASC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, userUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Search(ctx context.Context, term string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 25
	}
	query := fmt.Sprintf(`SELECT %s FROM support_tickets
        WHERE title ILIKE $1 OR description ILIKE $1 OR category ILIKE $1 OR guest_email ILIKE $1 OR uuid=$2
        ORDER BY time_opened ASC, uuid ASC LIMIT %d`, ticketColumns, limit)
	rows, err := r.pool.Query(ctx, query, "%"+term+"%", term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, uuid string, from, to domain.TicketStatus, timeClosed *time.Time) (bool, error) {
	const query = `UPDATE support_tickets SET status=$3, time_closed=$4 WHERE uuid=$1 AND status=$2`
	cmd, err := r.pool.Exec(ctx, query, uuid, from, to, timeClosed)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, uuid string, priority domain.TicketPriority) error {
	const query = `UPDATE support_tickets SET priority=$2 WHERE uuid=$1`
	cmd, err := r.pool.Exec(ctx, query, uuid, priority)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdateAssignees(ctx context.Context, uuid string, assignees []string) error {
	const query = `UPDATE support_tickets SET assigned_uuids=$2 WHERE uuid=$1`
	cmd, err := r.pool.Exec(ctx, query, uuid, assignees)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) DeleteCascade(ctx context.Context, uuid string, guardStatus domain.TicketStatus) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM support_ticket_messages WHERE ticket_uuid=$1`, uuid); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM support_ticket_feed WHERE ticket_uuid=$1`, uuid); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM support_ticket_attachments WHERE ticket_uuid=$1`, uuid); err != nil {
		return false, err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM support_tickets WHERE uuid=$1 AND status=$2`, uuid, guardStatus)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		// Ticket vanished or changed status since the service-level check;
		// roll everything back and let the caller re-resolve.
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ticketRepository) CountByStatuses(ctx context.Context, statuses []domain.TicketStatus) (int64, error) {
	vals := make([]string, len(statuses))
	for i, s := range statuses {
		vals[i] = string(s)
	}
	const query = `SELECT COUNT(*) FROM support_tickets WHERE status = ANY($1)`
	var count int64
	err := r.pool.QueryRow(ctx, query, vals).Scan(&count)
	return count, err
}

func (r *ticketRepository) CountOpenedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM support_tickets WHERE time_opened >= $1 AND time_opened < $2`
	var count int64
	err := r.pool.QueryRow(ctx, query, from, to).Scan(&count)
	return count, err
}

func (r *ticketRepository) AvgMinutesToClose(ctx context.Context) (float64, error) {
	const query = `
        SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (time_closed - time_opened)) / 60.0), 0)
        FROM support_tickets WHERE status=$1 AND time_closed IS NOT NULL`
	var avg float64
	err := r.pool.QueryRow(ctx, query, domain.TicketStatusClosed).Scan(&avg)
	return avg, err
}

func filterClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{}
	args := []any{}

	switch filter.Partition {
	case PartitionClosed:
		args = append(args, domain.TicketStatusClosed)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	default:
		args = append(args, domain.TicketStatusOpen, domain.TicketStatusInProgress)
		clauses = append(clauses, fmt.Sprintf("status IN ($%d,$%d)", len(args)-1, len(args)))
	}
	if filter.Assignee != nil {
		args = append(args, *filter.Assignee)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(assigned_uuids)", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	return clauses, args
}

func orderClause(sort TicketSortKey) string {
	switch sort {
	case SortByPriority:
		return `CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END ASC, uuid ASC`
	case SortByStatus:
		return `status ASC, uuid ASC`
	case SortByCategory:
		return `LOWER(category) ASC, uuid ASC`
	default:
		return `time_opened ASC, uuid ASC`
	}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var guestFirst, guestLast, guestEmail, guestOrg *string
	if err := row.Scan(
		&ticket.UUID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CapturedURL,
		&ticket.Apps,
		&ticket.AssignedUUIDs,
		&ticket.UserUUID,
		&guestFirst,
		&guestLast,
		&guestEmail,
		&guestOrg,
		&ticket.GuestAccessKeyHash,
		&ticket.TimeOpened,
		&ticket.TimeClosed,
	); err != nil {
		return nil, err
	}
	if guestEmail != nil {
		ticket.Guest = &domain.TicketGuest{
			FirstName:    deref(guestFirst),
			LastName:     deref(guestLast),
			Email:        *guestEmail,
			Organization: deref(guestOrg),
		}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
