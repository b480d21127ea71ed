package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuscare/counseling-service/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	StudentID   *string
	CounselorID *string
	Statuses    []domain.TicketStatus
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListAvailable returns the live queue: tickets with no assignee. The
	// visible set is always computed from counselor_id IS NULL, never cached.
	ListAvailable(ctx context.Context, limit, offset int) ([]domain.Ticket, error)
	// ClaimAssignee performs the atomic compare-and-set that resolves the
	// claim race: it only commits while the ticket is still new with no
	// assignee, the same predicate ListAvailable selects on. Returns false
	// when another counselor got there first or the ticket left the queue.
	ClaimAssignee(ctx context.Context, ticketID, counselorID string) (bool, error)
	// LatestOpenByStudent returns the student's most recent non-terminal
	// ticket, or pgx.ErrNoRows.
	LatestOpenByStudent(ctx context.Context, studentID string) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, student_id, counselor_id, category, status, crisis_level,
               priority, initial_message, forced_follow_up_event_id, created_at, updated_at, assigned_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, student_id, counselor_id, category, status, crisis_level, priority, initial_message, assigned_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.StudentID,
		ticket.CounselorID,
		ticket.Category,
		ticket.Status,
		ticket.CrisisLevel,
		ticket.Priority,
		ticket.InitialMessage,
		ticket.AssignedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET counselor_id=$1, category=$2, status=$3, crisis_level=$4, priority=$5,
            forced_follow_up_event_id=$6, assigned_at=$7, closed_at=$8, updated_at=NOW()
        WHERE id=$9`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.CounselorID,
		ticket.Category,
		ticket.Status,
		ticket.CrisisLevel,
		ticket.Priority,
		ticket.ForcedFollowUpEventID,
		ticket.AssignedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ticket_number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) ClaimAssignee(ctx context.Context, ticketID, counselorID string) (bool, error) {
	const query = `
        UPDATE tickets
        SET counselor_id=$2, status=$3, assigned_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND counselor_id IS NULL AND status=$4`
	cmd, err := r.pool.Exec(ctx, query, ticketID, counselorID, domain.TicketStatusAssigned, domain.TicketStatusNew)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) ListAvailable(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE counselor_id IS NULL AND status=$1
        ORDER BY priority DESC, created_at ASC
        LIMIT %d OFFSET %d`, ticketColumns, limit, offset)
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusNew)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) LatestOpenByStudent(ctx context.Context, studentID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE student_id=$1 AND status NOT IN ($2, $3)
        ORDER BY created_at DESC LIMIT 1`, ticketColumns)
	return r.fetchSingle(ctx, query, studentID, domain.TicketStatusResolved, domain.TicketStatusClosed)
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.StudentID != nil {
		args = append(args, *filter.StudentID)
		clauses = append(clauses, fmt.Sprintf("student_id=$%d", len(args)))
	}
	if filter.CounselorID != nil {
		args = append(args, *filter.CounselorID)
		clauses = append(clauses, fmt.Sprintf("counselor_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.StudentID,
		&ticket.CounselorID,
		&ticket.Category,
		&ticket.Status,
		&ticket.CrisisLevel,
		&ticket.Priority,
		&ticket.InitialMessage,
		&ticket.ForcedFollowUpEventID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AssignedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketNumber,
			&ticket.StudentID,
			&ticket.CounselorID,
			&ticket.Category,
			&ticket.Status,
			&ticket.CrisisLevel,
			&ticket.Priority,
			&ticket.InitialMessage,
			&ticket.ForcedFollowUpEventID,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.AssignedAt,
			&ticket.ClosedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
