package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-oer/support-service/internal/domain"
)

// TicketFeedRepository stores immutable audit entries. Entries are only
// appended and read; there is no update or single-entry delete path.
type TicketFeedRepository interface {
	Append(ctx context.Context, ticketUUID string, entry domain.TicketFeedEntry) error
	ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketFeedEntry, error)
}

type ticketFeedRepository struct {
	pool *pgxpool.Pool
}

// NewTicketFeedRepository builds repository.
func NewTicketFeedRepository(pool *pgxpool.Pool) TicketFeedRepository {
	return &ticketFeedRepository{pool: pool}
}

func (r *ticketFeedRepository) Append(ctx context.Context, ticketUUID string, entry domain.TicketFeedEntry) error {
	const query = `
        INSERT INTO support_ticket_feed (ticket_uuid, action, blame, entered_on)
        VALUES ($1,$2,$3,$4)`
	_, err := r.pool.Exec(ctx, query, ticketUUID, entry.Action, entry.Blame, entry.Date)
	return err
}

func (r *ticketFeedRepository) ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketFeedEntry, error) {
	const query = `
        SELECT action, blame, entered_on
        FROM support_ticket_feed WHERE ticket_uuid=$1 ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, ticketUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketFeedEntry
	for rows.Next() {
		var entry domain.TicketFeedEntry
		if err := rows.Scan(&entry.Action, &entry.Blame, &entry.Date); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
