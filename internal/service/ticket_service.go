package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/events"
	"github.com/campuscare/counseling-service/internal/repository"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// allowedTransitions is the authoritative lifecycle table. Any edge not
// listed here is rejected, including same-status writes.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew:      {domain.TicketStatusAssigned},
	domain.TicketStatusAssigned: {domain.TicketStatusActive, domain.TicketStatusFollowUp},
	domain.TicketStatusActive:   {domain.TicketStatusFollowUp, domain.TicketStatusResolved},
	domain.TicketStatusFollowUp: {domain.TicketStatusActive, domain.TicketStatusResolved},
	domain.TicketStatusResolved: {domain.TicketStatusClosed},
	domain.TicketStatusClosed:   {},
}

func isValidTransition(from, to domain.TicketStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CreateTicketInput carries validated ticket creation parameters.
type CreateTicketInput struct {
	Category       string
	InitialMessage string
	CrisisLevel    domain.CrisisLevel
	Priority       int
	CounselorID    *string
}

// TicketServiceDependencies wires the ticket service.
type TicketServiceDependencies struct {
	Tickets    repository.TicketRepository
	History    repository.TicketHistoryRepository
	Users      repository.UserRepository
	Locks      *TicketLocks
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// TicketService owns the ticket lifecycle state machine.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	users      repository.UserRepository
	locks      *TicketLocks
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketServiceDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.Tickets,
		history:    deps.History,
		users:      deps.Users,
		locks:      deps.Locks,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// Create opens a new ticket for the student. The stated crisis level is
// taken as-is; the initial message is stored verbatim and never keyword
// scanned, only live chat messages feed the evaluator. A pre-selected
// counselor makes the ticket born assigned.
func (s *TicketService) Create(ctx context.Context, student *domain.User, input CreateTicketInput) (*domain.Ticket, error) {
	if student == nil {
		return nil, apperrors.NewUnauthenticated("missing principal")
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, apperrors.NewValidationError("category is required", nil)
	}
	if strings.TrimSpace(input.InitialMessage) == "" {
		return nil, apperrors.NewValidationError("initial message is required", nil)
	}
	level := input.CrisisLevel
	if level == "" {
		level = domain.CrisisLevelNone
	}
	if !level.Valid() {
		return nil, apperrors.NewValidationError("unknown crisis level",
			map[string]any{"crisis_level": string(input.CrisisLevel)})
	}

	ticket := &domain.Ticket{
		TicketNumber:   generateTicketNumber(),
		StudentID:      student.ID,
		Category:       category,
		Status:         domain.TicketStatusNew,
		CrisisLevel:    level,
		Priority:       input.Priority,
		InitialMessage: strings.TrimSpace(input.InitialMessage),
	}

	if input.CounselorID != nil {
		counselor, err := s.users.GetByID(ctx, *input.CounselorID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		if !counselor.Role.Counselor() {
			return nil, apperrors.NewValidationError("selected user cannot counsel",
				map[string]any{"counselor_id": counselor.ID})
		}
		now := time.Now()
		ticket.CounselorID = &counselor.ID
		ticket.Status = domain.TicketStatusAssigned
		ticket.AssignedAt = &now
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if ticket.CounselorID != nil {
		s.recordHistory(ctx, ticket.ID, &student.ID, domain.ChangeTypeAssignee,
			map[string]any{"counselor_id": nil},
			map[string]any{"counselor_id": *ticket.CounselorID})
	}

	s.publish(ctx, events.EventTicketCreated, ticket.ID, student.ID, events.TicketCreatedPayload{
		TicketNumber: ticket.TicketNumber,
		Category:     ticket.Category,
		CrisisLevel:  ticket.CrisisLevel,
		Assigned:     ticket.CounselorID != nil,
	})
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("crisis_level", string(ticket.CrisisLevel)))
	return ticket, nil
}

// Get returns the ticket after an authorization check.
func (s *TicketService) Get(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ticket.CanView(actor) {
		return nil, apperrors.NewNotAuthorized("not a party to this ticket")
	}
	return ticket, nil
}

// List returns the actor's ticket view: students see their own tickets,
// counselors the ones assigned to them, admins everything.
func (s *TicketService) List(ctx context.Context, actor *domain.User, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("missing principal")
	}
	filter := repository.TicketFilter{Statuses: statuses, Limit: limit, Offset: offset}
	switch {
	case actor.Role == domain.RoleAdmin:
	case actor.Role.Counselor():
		filter.CounselorID = &actor.ID
	default:
		filter.StudentID = &actor.ID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// History returns the audit trail for a ticket the actor may view.
func (s *TicketService) History(ctx context.Context, actor *domain.User, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.Get(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// Transition drives the lifecycle state machine. Only the assigned
// counselor or an admin may transition; moving to resolved or closed
// releases the assignee so the terminal record carries no active pairing.
func (s *TicketService) Transition(ctx context.Context, actor *domain.User, ticketID string, target domain.TicketStatus) (*domain.Ticket, error) {
	release, err := s.locks.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ticket.CanTransition(actor) {
		return nil, apperrors.NewNotAuthorized("only the assigned counselor or an admin may change ticket status")
	}
	if !isValidTransition(ticket.Status, target) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(target))
	}
	// Statuses that pair the ticket with a counselor are only reachable
	// through claim or assignment; a bare status write would leave the
	// ticket assigned with nobody holding it.
	if target.RequiresAssignee() && ticket.CounselorID == nil {
		return nil, apperrors.NewInvalidState("status requires an assigned counselor; claim or assign the ticket instead",
			map[string]any{"status": string(target)})
	}

	oldStatus := ticket.Status
	oldAssignee := ticket.CounselorID
	ticket.Status = target
	if target == domain.TicketStatusClosed {
		now := time.Now()
		ticket.ClosedAt = &now
	}
	if ticket.Terminal() {
		ticket.CounselorID = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.recordHistory(ctx, ticket.ID, &actor.ID, domain.ChangeTypeStatus,
		map[string]any{"status": string(oldStatus)},
		map[string]any{"status": string(target)})
	if oldAssignee != nil && ticket.CounselorID == nil {
		s.recordHistory(ctx, ticket.ID, &actor.ID, domain.ChangeTypeAssignee,
			map[string]any{"counselor_id": *oldAssignee},
			map[string]any{"counselor_id": nil})
	}

	s.publish(ctx, events.EventTicketStatusChanged, ticket.ID, actor.ID, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: target,
	})
	s.logger.Info("ticket status changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(target)))
	return ticket, nil
}

// RecordActivity flips a freshly assigned ticket to active on the first
// exchanged message. Must be called while holding the ticket's lock.
func (s *TicketService) RecordActivity(ctx context.Context, ticket *domain.Ticket, actorID string) error {
	if ticket.Status != domain.TicketStatusAssigned {
		return nil
	}
	ticket.Status = domain.TicketStatusActive
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	s.recordHistory(ctx, ticket.ID, &actorID, domain.ChangeTypeStatus,
		map[string]any{"status": string(domain.TicketStatusAssigned)},
		map[string]any{"status": string(domain.TicketStatusActive)})
	s.publish(ctx, events.EventTicketStatusChanged, ticket.ID, actorID, events.TicketStatusChangedPayload{
		OldStatus: domain.TicketStatusAssigned,
		NewStatus: domain.TicketStatusActive,
	})
	return nil
}

// ForceFollowUp pins an assigned or active ticket to follow_up in
// response to a critical crisis event, recording which event forced it.
// Unassigned tickets keep status new so they stay claimable, and terminal
// tickets are left untouched. Must be called while holding the ticket's
// lock.
func (s *TicketService) ForceFollowUp(ctx context.Context, ticket *domain.Ticket, eventID string) error {
	switch ticket.Status {
	case domain.TicketStatusAssigned, domain.TicketStatusActive:
	default:
		return nil
	}
	oldStatus := ticket.Status
	ticket.Status = domain.TicketStatusFollowUp
	ticket.ForcedFollowUpEventID = &eventID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	s.recordHistory(ctx, ticket.ID, nil, domain.ChangeTypeStatus,
		map[string]any{"status": string(oldStatus)},
		map[string]any{"status": string(domain.TicketStatusFollowUp), "forced_by_event": eventID})
	s.publish(ctx, events.EventTicketStatusChanged, ticket.ID, "", events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: domain.TicketStatusFollowUp,
		Forced:    true,
	})
	s.logger.Warn("ticket forced to follow_up",
		zap.String("ticket_id", ticket.ID),
		zap.String("crisis_event_id", eventID))
	return nil
}

// ElevateCrisisLevel raises the ticket's crisis level high-water mark.
// Downgrades are ignored; the level only moves up while the ticket is
// open. Must be called while holding the ticket's lock.
func (s *TicketService) ElevateCrisisLevel(ctx context.Context, ticket *domain.Ticket, level domain.CrisisLevel) error {
	if level.Rank() <= ticket.CrisisLevel.Rank() {
		return nil
	}
	old := ticket.CrisisLevel
	ticket.CrisisLevel = level
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return apperrors.MapError(err)
	}
	s.recordHistory(ctx, ticket.ID, nil, domain.ChangeTypeCrisisLevel,
		map[string]any{"crisis_level": string(old)},
		map[string]any{"crisis_level": string(level)})
	return nil
}

func (s *TicketService) recordHistory(ctx context.Context, ticketID string, changedBy *string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	entry := &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedByID: changedBy,
		ChangeType:  changeType,
		OldValue:    oldValue,
		NewValue:    newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(changeType)),
			zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID, actorID string, payload any) {
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func generateTicketNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("TKT-%s-%s", time.Now().Format("20060102"), suffix)
}
