package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/conductor-oer/support-service/internal/domain"
)

// AttachmentRepository persists attachment metadata. Bytes live in the
// external object store.
type AttachmentRepository interface {
	Create(ctx context.Context, ticketUUID string, attachment *domain.TicketAttachment) error
	ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketAttachment, error)
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, ticketUUID string, attachment *domain.TicketAttachment) error {
	const query = `
        INSERT INTO support_ticket_attachments (uuid, ticket_uuid, name, uploaded_by, uploaded_date)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query,
		attachment.UUID,
		ticketUUID,
		attachment.Name,
		attachment.UploadedBy,
		attachment.UploadedDate,
	)
	return err
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketUUID string) ([]domain.TicketAttachment, error) {
	const query = `
        SELECT uuid, name, uploaded_by, uploaded_date
        FROM support_ticket_attachments WHERE ticket_uuid=$1 ORDER BY uploaded_date ASC`
	rows, err := r.pool.Query(ctx, query, ticketUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketAttachment
	for rows.Next() {
		var attachment domain.TicketAttachment
		if err := rows.Scan(
			&attachment.UUID,
			&attachment.Name,
			&attachment.UploadedBy,
			&attachment.UploadedDate,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
