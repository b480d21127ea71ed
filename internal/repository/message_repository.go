package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/counseling-service/internal/domain"
)

// MessageRepository manages the per-ticket chat thread.
type MessageRepository interface {
	// Create persists a message with the caller-supplied CreatedAt. The
	// broker assigns timestamps under the per-ticket lock so they are
	// strictly increasing within a ticket.
	Create(ctx context.Context, msg *domain.Message) error
	ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error)
	// ListByTicketSince returns messages strictly newer than the cursor, in
	// persisted order, for reconnect replay.
	ListByTicketSince(ctx context.Context, ticketID string, since time.Time, limit int) ([]domain.Message, error)
	// LastCreatedAt returns the newest message timestamp on the ticket and
	// false when the thread is empty.
	LastCreatedAt(ctx context.Context, ticketID string) (time.Time, bool, error)
	MarkDelivered(ctx context.Context, messageID string) error
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (ticket_id, sender_id, body, delivery_state, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.Body,
		msg.DeliveryState,
		msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *messageRepository) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
        SELECT id, ticket_id, sender_id, body, delivery_state, created_at
        FROM messages WHERE ticket_id=$1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, ticketID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) ListByTicketSince(ctx context.Context, ticketID string, since time.Time, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `
        SELECT id, ticket_id, sender_id, body, delivery_state, created_at
        FROM messages WHERE ticket_id=$1 AND created_at > $2 ORDER BY created_at ASC LIMIT $3`
	rows, err := r.pool.Query(ctx, query, ticketID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepository) LastCreatedAt(ctx context.Context, ticketID string) (time.Time, bool, error) {
	const query = `SELECT MAX(created_at) FROM messages WHERE ticket_id=$1`
	var last *time.Time
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(&last); err != nil {
		return time.Time{}, false, err
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return *last, true, nil
}

func (r *messageRepository) MarkDelivered(ctx context.Context, messageID string) error {
	const query = `UPDATE messages SET delivery_state=$1 WHERE id=$2`
	_, err := r.pool.Exec(ctx, query, domain.DeliveryDelivered, messageID)
	return err
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.Body,
			&msg.DeliveryState,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
