package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-oer/support-service/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	// ListByTicket returns messages in chronological order, ties broken by
	// the store-assigned sequence number.
	ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO support_ticket_messages (uuid, ticket_uuid, body, attachments, sender_uuid, sender_email,
            sender_is_staff, message_type, time_sent)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING seq`
	return r.pool.QueryRow(ctx, query,
		msg.UUID,
		msg.TicketUUID,
		msg.Body,
		msg.Attachments,
		msg.SenderUUID,
		msg.SenderEmail,
		msg.SenderIsStaff,
		msg.Type,
		msg.TimeSent,
	).Scan(&msg.Seq)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT uuid, ticket_uuid, body, attachments, sender_uuid, sender_email, sender_is_staff,
               message_type, seq, time_sent
        FROM support_ticket_messages WHERE ticket_uuid=$1 ORDER BY time_sent ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.UUID,
			&msg.TicketUUID,
			&msg.Body,
			&msg.Attachments,
			&msg.SenderUUID,
			&msg.SenderEmail,
			&msg.SenderIsStaff,
			&msg.Type,
			&msg.Seq,
			&msg.TimeSent,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
