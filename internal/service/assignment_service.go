package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/events"
	"github.com/campuscare/counseling-service/internal/repository"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// AssignmentServiceDependencies wires the assignment resolver.
type AssignmentServiceDependencies struct {
	Tickets    repository.TicketRepository
	History    repository.TicketHistoryRepository
	Users      repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// AssignmentService resolves which counselor owns a ticket. The claim
// race is settled by a conditional write that only commits while the
// ticket has no assignee; no lock is held across the queue view and the
// claim, so the queue is advisory and the write is the decision.
type AssignmentService struct {
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAssignmentService constructs the service.
func NewAssignmentService(deps AssignmentServiceDependencies) *AssignmentService {
	return &AssignmentService{
		tickets:    deps.Tickets,
		history:    deps.History,
		users:      deps.Users,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// AvailableTickets returns the claimable queue: unassigned tickets in
// priority order. Always computed from current assignee state, never
// cached, so a ticket claimed elsewhere disappears on the next fetch.
func (s *AssignmentService) AvailableTickets(ctx context.Context, actor *domain.User, limit, offset int) ([]domain.Ticket, error) {
	if actor == nil || !(actor.Role.Counselor() || actor.Role == domain.RoleAdmin) {
		return nil, apperrors.NewNotAuthorized("only counselors may browse the queue")
	}
	tickets, err := s.tickets.ListAvailable(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Claim lets a counselor take an unassigned ticket. Exactly one of N
// concurrent claimers wins; losers get ALREADY_CLAIMED with the winning
// assignee so they can refresh their queue. A repeat claim by the
// current assignee is an idempotent no-op.
func (s *AssignmentService) Claim(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil || !(actor.Role.Counselor() || actor.Role == domain.RoleAdmin) {
		return nil, apperrors.NewNotAuthorized("only counselors may claim tickets")
	}

	won, err := s.tickets.ClaimAssignee(ctx, ticketID, actor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if !won {
		if ticket.CounselorID != nil && *ticket.CounselorID == actor.ID {
			return ticket, nil
		}
		if ticket.CounselorID == nil {
			// Assignee was released between the write and the read; the
			// ticket is terminal or back in an unclaimable state.
			return nil, apperrors.NewInvalidState("ticket is no longer claimable",
				map[string]any{"status": string(ticket.Status)})
		}
		return nil, apperrors.NewAlreadyClaimed(*ticket.CounselorID)
	}

	s.recordAssignment(ctx, ticket, actor.ID, actor.ID, true)
	s.logger.Info("ticket claimed",
		zap.String("ticket_id", ticket.ID),
		zap.String("counselor_id", actor.ID))
	return ticket, nil
}

// AssignTo lets an admin hand an unassigned ticket to a specific
// counselor. The same conditional write settles races with self-claims.
func (s *AssignmentService) AssignTo(ctx context.Context, actor *domain.User, ticketID, counselorID string) (*domain.Ticket, error) {
	if actor == nil || actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewNotAuthorized("only admins may assign tickets directly")
	}

	counselor, err := s.users.GetByID(ctx, counselorID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !counselor.Role.Counselor() {
		return nil, apperrors.NewValidationError("selected user cannot counsel",
			map[string]any{"counselor_id": counselorID})
	}

	won, err := s.tickets.ClaimAssignee(ctx, ticketID, counselor.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if !won {
		if ticket.CounselorID != nil && *ticket.CounselorID == counselor.ID {
			return ticket, nil
		}
		if ticket.CounselorID == nil {
			return nil, apperrors.NewInvalidState("ticket is no longer assignable",
				map[string]any{"status": string(ticket.Status)})
		}
		return nil, apperrors.NewConflict("ticket already assigned",
			map[string]any{"assignee_id": *ticket.CounselorID})
	}

	s.recordAssignment(ctx, ticket, actor.ID, counselor.ID, false)
	s.logger.Info("ticket assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("counselor_id", counselor.ID),
		zap.String("assigned_by", actor.ID))
	return ticket, nil
}

func (s *AssignmentService) recordAssignment(ctx context.Context, ticket *domain.Ticket, actorID, counselorID string, selfClaimed bool) {
	entry := &domain.TicketHistory{
		TicketID:    ticket.ID,
		ChangedByID: &actorID,
		ChangeType:  domain.ChangeTypeAssignee,
		OldValue:    map[string]any{"counselor_id": nil},
		NewValue:    map[string]any{"counselor_id": counselorID},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record assignment history",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventTicketAssigned,
		TicketID:  ticket.ID,
		ActorID:   actorID,
		Timestamp: time.Now(),
		Payload: events.TicketAssignedPayload{
			CounselorID: counselorID,
			SelfClaimed: selfClaimed,
		},
	})
}
