package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/events"
	"github.com/campuscare/counseling-service/internal/live"
	"github.com/campuscare/counseling-service/internal/observability"
	"github.com/campuscare/counseling-service/internal/repository"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

const maxMessageBody = 4000

// crisisEscalator is the broker's hook into the crisis evaluator; the
// scan runs off the send path so a slow escalation never delays delivery.
type crisisEscalator interface {
	EvaluateAndRaise(ctx context.Context, ticket *domain.Ticket, msg *domain.Message)
}

// MessageServiceDependencies wires the message broker.
type MessageServiceDependencies struct {
	Tickets     repository.TicketRepository
	Messages    repository.MessageRepository
	TicketSvc   *TicketService
	Crisis      crisisEscalator
	Registry    *live.Registry
	Cursors     live.CursorStore
	Locks       *TicketLocks
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	ReplayLimit int
}

// MessageService is the per-ticket message broker: sole writer of the
// chat thread and source of all live fan-out. Send and session attach
// run under the same per-ticket lock, which makes in-ticket timestamps
// strictly increasing and reconnect replay gapless.
type MessageService struct {
	tickets     repository.TicketRepository
	messages    repository.MessageRepository
	ticketSvc   *TicketService
	crisis      crisisEscalator
	registry    *live.Registry
	cursors     live.CursorStore
	locks       *TicketLocks
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	replayLimit int
}

// NewMessageService constructs the broker.
func NewMessageService(deps MessageServiceDependencies) *MessageService {
	limit := deps.ReplayLimit
	if limit <= 0 {
		limit = 500
	}
	return &MessageService{
		tickets:     deps.Tickets,
		messages:    deps.Messages,
		ticketSvc:   deps.TicketSvc,
		crisis:      deps.Crisis,
		registry:    deps.Registry,
		cursors:     deps.Cursors,
		locks:       deps.Locks,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		replayLimit: limit,
	}
}

// Send validates, persists and fans out one chat message. The sender
// must be a party to the ticket and the ticket must not be terminal.
// Persist-then-fanout: once Send returns the message survives restarts
// regardless of who was attached.
func (s *MessageService) Send(ctx context.Context, ticketID string, sender *domain.User, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body is required", nil)
	}
	if len(body) > maxMessageBody {
		return nil, apperrors.NewValidationError("message body too long",
			map[string]any{"max_length": maxMessageBody})
	}

	release, err := s.locks.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ticket.CanSend(sender) {
		return nil, apperrors.NewNotAuthorized("not a party to this ticket")
	}
	if ticket.Terminal() {
		return nil, apperrors.NewInvalidState("ticket no longer accepts messages",
			map[string]any{"status": string(ticket.Status)})
	}

	msg := &domain.Message{
		TicketID:      ticketID,
		SenderID:      sender.ID,
		Body:          body,
		DeliveryState: domain.DeliverySent,
		CreatedAt:     s.nextTimestamp(ctx, ticketID),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}

	if err := s.ticketSvc.RecordActivity(ctx, ticket, sender.ID); err != nil {
		s.logger.Error("failed to activate ticket on first message",
			zap.String("ticket_id", ticketID), zap.Error(err))
	}

	// Every live session gets the message, the sender's included, so a
	// sender posting over REST still sees the echo on their open stream.
	// Cursors advance only for sessions actually delivered to; a party
	// with no session, sender or not, picks the message up on replay.
	delivered := s.registry.Broadcast(ticketID, live.NewMessageEnvelope(msg), "")
	if len(delivered) > 0 {
		msg.DeliveryState = domain.DeliveryDelivered
		if err := s.messages.MarkDelivered(ctx, msg.ID); err != nil {
			s.logger.Warn("failed to mark message delivered",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
		for _, partyID := range delivered {
			s.advanceCursor(ctx, ticketID, partyID, msg.CreatedAt)
		}
	}

	s.metrics.MessageSent()
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventMessageSent,
		TicketID:  ticketID,
		ActorID:   sender.ID,
		Timestamp: time.Now(),
		Payload: events.MessageSentPayload{
			MessageID:   msg.ID,
			SenderID:    sender.ID,
			BodyPreview: preview(msg.Body),
			Delivered:   len(delivered),
		},
	})

	if s.crisis != nil {
		go s.evaluateAsync(ticket, msg)
	}
	return msg, nil
}

// Attach binds a party's channel to the ticket's live stream. Missed
// messages newer than the cursor are replayed in order before the
// session goes live; holding the ticket lock for the whole step means no
// concurrent send can slip between replay and fan-out, so each missed
// message arrives exactly once.
func (s *MessageService) Attach(ctx context.Context, ticketID string, party *domain.User, ch *live.Channel, since *time.Time) error {
	release, err := s.locks.Acquire(ctx, ticketID)
	if err != nil {
		return err
	}
	defer release()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if party == nil || !ticket.IsParty(party.ID) {
		return apperrors.NewNotAuthorized("not a party to this ticket")
	}

	cursor := since
	if cursor == nil {
		if ts, ok, err := s.cursors.Get(ctx, ticketID, party.ID); err == nil && ok {
			cursor = &ts
		}
	}

	var replay []domain.Message
	if cursor != nil {
		replay, err = s.messages.ListByTicketSince(ctx, ticketID, *cursor, s.replayLimit)
	} else {
		replay, err = s.messages.ListByTicket(ctx, ticketID, s.replayLimit)
	}
	if err != nil {
		return apperrors.MapError(err)
	}

	s.registry.Attach(ticketID, party.ID, ch)
	s.metrics.SessionOpened()

	for i := range replay {
		if err := ch.Send(live.NewMessageEnvelope(&replay[i])); err != nil {
			s.registry.Detach(ticketID, party.ID, ch)
			s.metrics.SessionClosed()
			return apperrors.NewInternalError(err)
		}
	}
	if n := len(replay); n > 0 {
		s.advanceCursor(ctx, ticketID, party.ID, replay[n-1].CreatedAt)
		s.logger.Debug("replayed missed messages",
			zap.String("ticket_id", ticketID),
			zap.String("party_id", party.ID),
			zap.Int("count", n))
	}
	return nil
}

// Detach removes the party's live session if it still owns the channel.
func (s *MessageService) Detach(ticketID, partyID string, ch *live.Channel) {
	if s.registry.Attached(ticketID, partyID) {
		s.registry.Detach(ticketID, partyID, ch)
		s.metrics.SessionClosed()
	}
}

// History returns the persisted thread for a ticket the actor may view.
func (s *MessageService) History(ctx context.Context, actor *domain.User, ticketID string, since *time.Time, limit int) ([]domain.Message, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ticket.CanView(actor) {
		return nil, apperrors.NewNotAuthorized("not a party to this ticket")
	}
	var msgs []domain.Message
	if since != nil {
		msgs, err = s.messages.ListByTicketSince(ctx, ticketID, *since, limit)
	} else {
		msgs, err = s.messages.ListByTicket(ctx, ticketID, limit)
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return msgs, nil
}

// nextTimestamp assigns a server timestamp strictly after the newest
// message on the ticket. Called under the ticket lock; the nudge keeps
// ordering total even when the clock returns equal or earlier readings.
func (s *MessageService) nextTimestamp(ctx context.Context, ticketID string) time.Time {
	ts := time.Now()
	last, ok, err := s.messages.LastCreatedAt(ctx, ticketID)
	if err != nil {
		s.logger.Warn("failed to read last message timestamp",
			zap.String("ticket_id", ticketID), zap.Error(err))
		return ts
	}
	if ok && !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	return ts
}

func (s *MessageService) advanceCursor(ctx context.Context, ticketID, partyID string, ts time.Time) {
	if err := s.cursors.Set(ctx, ticketID, partyID, ts); err != nil {
		s.logger.Debug("failed to advance replay cursor",
			zap.String("ticket_id", ticketID),
			zap.String("party_id", partyID),
			zap.Error(err))
	}
}

func (s *MessageService) evaluateAsync(ticket *domain.Ticket, msg *domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("crisis evaluation panicked",
				zap.String("ticket_id", ticket.ID),
				zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.crisis.EvaluateAndRaise(ctx, ticket, msg)
}

func preview(body string) string {
	const max = 80
	if len(body) <= max {
		return body
	}
	// Back up to a rune boundary so a multibyte character is never split.
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
