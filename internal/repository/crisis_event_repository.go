package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/counseling-service/internal/domain"
)

// CrisisEventRepository manages crisis event records.
type CrisisEventRepository interface {
	Create(ctx context.Context, event *domain.CrisisEvent) error
	GetByID(ctx context.Context, id string) (*domain.CrisisEvent, error)
	// GetUnresolvedByTicket returns the single open event for the ticket,
	// or pgx.ErrNoRows.
	GetUnresolvedByTicket(ctx context.Context, ticketID string) (*domain.CrisisEvent, error)
	UpdateLevel(ctx context.Context, id string, level domain.CrisisLevel) error
	Acknowledge(ctx context.Context, id string, at time.Time) error
	Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error
	// MarkNotified flips a notification flag and reports whether this call
	// won the flip; each channel fires at most once per event.
	MarkNotified(ctx context.Context, id string, channel domain.NotifyChannel) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]domain.CrisisEvent, error)
}

type crisisEventRepository struct {
	pool *pgxpool.Pool
}

// NewCrisisEventRepository builds repository.
func NewCrisisEventRepository(pool *pgxpool.Pool) CrisisEventRepository {
	return &crisisEventRepository{pool: pool}
}

const crisisColumns = `id, ticket_id, level, trigger_reason, auto_detected,
               notified_contacts, notified_admin, notified_security,
               resolution_notes, resolved_by, created_at, acknowledged_at, resolved_at`

func (r *crisisEventRepository) Create(ctx context.Context, event *domain.CrisisEvent) error {
	const query = `
        INSERT INTO crisis_events (ticket_id, level, trigger_reason, auto_detected)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		event.TicketID,
		event.Level,
		event.TriggerReason,
		event.AutoDetected,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *crisisEventRepository) GetByID(ctx context.Context, id string) (*domain.CrisisEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM crisis_events WHERE id=$1`, crisisColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *crisisEventRepository) GetUnresolvedByTicket(ctx context.Context, ticketID string) (*domain.CrisisEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM crisis_events WHERE ticket_id=$1 AND resolved_at IS NULL`, crisisColumns)
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *crisisEventRepository) UpdateLevel(ctx context.Context, id string, level domain.CrisisLevel) error {
	const query = `UPDATE crisis_events SET level=$1 WHERE id=$2 AND resolved_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, level, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *crisisEventRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE crisis_events SET acknowledged_at=$1 WHERE id=$2 AND acknowledged_at IS NULL`
	_, err := r.pool.Exec(ctx, query, at, id)
	return err
}

func (r *crisisEventRepository) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error {
	const query = `
        UPDATE crisis_events SET resolved_at=$1, resolved_by=$2, resolution_notes=$3
        WHERE id=$4 AND resolved_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, resolvedBy, notes, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *crisisEventRepository) MarkNotified(ctx context.Context, id string, channel domain.NotifyChannel) (bool, error) {
	var column string
	switch channel {
	case domain.NotifyContacts:
		column = "notified_contacts"
	case domain.NotifyAdmin:
		column = "notified_admin"
	case domain.NotifySecurity:
		column = "notified_security"
	default:
		return false, errors.New("unknown notify channel")
	}
	query := fmt.Sprintf(`UPDATE crisis_events SET %s=TRUE WHERE id=$1 AND %s=FALSE`, column, column)
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *crisisEventRepository) ListRecent(ctx context.Context, limit int) ([]domain.CrisisEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM crisis_events ORDER BY created_at DESC LIMIT $1`, crisisColumns)
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CrisisEvent
	for rows.Next() {
		event, err := scanCrisisEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *event)
	}
	return result, rows.Err()
}

func (r *crisisEventRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.CrisisEvent, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	return scanCrisisEvent(row)
}

func scanCrisisEvent(row pgx.Row) (*domain.CrisisEvent, error) {
	var event domain.CrisisEvent
	if err := row.Scan(
		&event.ID,
		&event.TicketID,
		&event.Level,
		&event.TriggerReason,
		&event.AutoDetected,
		&event.NotifiedContacts,
		&event.NotifiedAdmin,
		&event.NotifiedSecurity,
		&event.ResolutionNotes,
		&event.ResolvedBy,
		&event.CreatedAt,
		&event.AcknowledgedAt,
		&event.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &event, nil
}
