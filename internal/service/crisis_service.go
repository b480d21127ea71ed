package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/config"
	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/events"
	"github.com/campuscare/counseling-service/internal/observability"
	"github.com/campuscare/counseling-service/internal/repository"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// Notifier delivers escalation payloads to an external channel. Failures
// are logged, never propagated to the triggering operation.
type Notifier interface {
	Notify(ctx context.Context, channel domain.NotifyChannel, payload NotificationPayload) error
}

// NotificationPayload is the escalation message handed to notifiers.
type NotificationPayload struct {
	TicketID  string               `json:"ticket_id,omitempty"`
	EventID   string               `json:"event_id,omitempty"`
	StudentID string               `json:"student_id,omitempty"`
	Level     domain.CrisisLevel   `json:"level"`
	Reason    domain.CrisisTrigger `json:"reason"`
	Summary   string               `json:"summary"`
}

type keywordTier struct {
	level   domain.CrisisLevel
	phrases []string
}

// KeywordMatcher scans message text against configured phrase tiers,
// highest severity first. Matching is case-insensitive substring search;
// it trades precision for never missing a configured phrase.
type KeywordMatcher struct {
	tiers []keywordTier
}

// NewKeywordMatcher compiles the configured tiers.
func NewKeywordMatcher(cfg config.CrisisConfig) *KeywordMatcher {
	build := func(level domain.CrisisLevel, phrases []string) keywordTier {
		lowered := make([]string, 0, len(phrases))
		for _, p := range phrases {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				lowered = append(lowered, p)
			}
		}
		return keywordTier{level: level, phrases: lowered}
	}
	return &KeywordMatcher{tiers: []keywordTier{
		build(domain.CrisisLevelCritical, cfg.CriticalKeywords),
		build(domain.CrisisLevelHigh, cfg.HighKeywords),
		build(domain.CrisisLevelMedium, cfg.MediumKeywords),
		build(domain.CrisisLevelLow, cfg.LowKeywords),
	}}
}

// Match returns the highest tier whose phrase appears in the text, and
// false when nothing matches.
func (m *KeywordMatcher) Match(text string) (domain.CrisisLevel, bool) {
	lowered := strings.ToLower(text)
	for _, tier := range m.tiers {
		for _, phrase := range tier.phrases {
			if strings.Contains(lowered, phrase) {
				return tier.level, true
			}
		}
	}
	return domain.CrisisLevelNone, false
}

// CrisisServiceDependencies wires the crisis evaluator.
type CrisisServiceDependencies struct {
	CrisisEvents repository.CrisisEventRepository
	Tickets      repository.TicketRepository
	Assessments  repository.AssessmentRepository
	TicketSvc    *TicketService
	Locks        *TicketLocks
	Matcher      *KeywordMatcher
	Notifier     Notifier
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// CrisisService detects and tracks elevated-risk situations: keyword
// scanning of chat messages, self-assessment scoring, and the per-ticket
// crisis event record with its escalation side effects.
type CrisisService struct {
	crisisEvents repository.CrisisEventRepository
	tickets      repository.TicketRepository
	assessments  repository.AssessmentRepository
	ticketSvc    *TicketService
	locks        *TicketLocks
	matcher      *KeywordMatcher
	notifier     Notifier
	dispatcher   events.Dispatcher
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewCrisisService constructs the service.
func NewCrisisService(deps CrisisServiceDependencies) *CrisisService {
	return &CrisisService{
		crisisEvents: deps.CrisisEvents,
		tickets:      deps.Tickets,
		assessments:  deps.Assessments,
		ticketSvc:    deps.TicketSvc,
		locks:        deps.Locks,
		matcher:      deps.Matcher,
		notifier:     deps.Notifier,
		dispatcher:   deps.Dispatcher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

// EvaluateAndRaise scans a chat message and raises or upgrades the
// ticket's crisis event on a match. Runs off the send path; errors are
// logged and never surface to the sender.
func (s *CrisisService) EvaluateAndRaise(ctx context.Context, ticket *domain.Ticket, msg *domain.Message) {
	level, matched := s.matcher.Match(msg.Body)
	if !matched {
		return
	}
	if _, err := s.raise(ctx, ticket.ID, level, domain.TriggerAutoKeyword, true, nil); err != nil {
		s.logger.Error("failed to raise crisis event from message",
			zap.String("ticket_id", ticket.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}
}

// Report raises a crisis event manually. Any party to the ticket or an
// admin may report; counselors typically use it to record an observation
// the keyword scan cannot see.
func (s *CrisisService) Report(ctx context.Context, actor *domain.User, ticketID string, level domain.CrisisLevel) (*domain.CrisisEvent, error) {
	if !level.Valid() || level == domain.CrisisLevelNone {
		return nil, apperrors.NewValidationError("a reported crisis needs a severity above none",
			map[string]any{"level": string(level)})
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !ticket.CanView(actor) {
		return nil, apperrors.NewNotAuthorized("not a party to this ticket")
	}
	return s.raise(ctx, ticketID, level, domain.TriggerManual, false, &actor.ID)
}

// raise applies the monotonic upgrade rule under the ticket lock: at
// most one unresolved event per ticket, its level only moves up, and the
// ticket's own crisis level follows as a high-water mark. A critical
// event additionally pins the ticket to follow_up and fans out to every
// notification channel at most once.
func (s *CrisisService) raise(ctx context.Context, ticketID string, level domain.CrisisLevel, reason domain.CrisisTrigger, auto bool, actorID *string) (*domain.CrisisEvent, error) {
	release, err := s.locks.Acquire(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	upgraded := false
	event, err := s.crisisEvents.GetUnresolvedByTicket(ctx, ticketID)
	switch {
	case err == nil:
		if level.Rank() > event.Level.Rank() {
			if err := s.crisisEvents.UpdateLevel(ctx, event.ID, level); err != nil {
				return nil, apperrors.MapError(err)
			}
			event.Level = level
			upgraded = true
		}
	case errors.Is(err, pgx.ErrNoRows):
		event = &domain.CrisisEvent{
			TicketID:      ticketID,
			Level:         level,
			TriggerReason: reason,
			AutoDetected:  auto,
		}
		if err := s.crisisEvents.Create(ctx, event); err != nil {
			return nil, apperrors.MapError(err)
		}
		upgraded = true
	default:
		return nil, apperrors.MapError(err)
	}

	if err := s.ticketSvc.ElevateCrisisLevel(ctx, ticket, event.Level); err != nil {
		s.logger.Error("failed to elevate ticket crisis level",
			zap.String("ticket_id", ticketID), zap.Error(err))
	}

	if event.Level == domain.CrisisLevelCritical {
		if err := s.ticketSvc.ForceFollowUp(ctx, ticket, event.ID); err != nil {
			s.logger.Error("failed to force follow-up",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
		s.notifyAll(ctx, ticket, event)
	}

	if upgraded {
		s.metrics.CrisisRaised()
		actor := ""
		if actorID != nil {
			actor = *actorID
		}
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventCrisisRaised,
			TicketID:  ticketID,
			ActorID:   actor,
			Timestamp: time.Now(),
			Payload: events.CrisisRaisedPayload{
				EventID:      event.ID,
				Level:        event.Level,
				Reason:       reason,
				AutoDetected: auto,
				Upgraded:     upgraded,
			},
		})
		s.logger.Warn("crisis event raised",
			zap.String("ticket_id", ticketID),
			zap.String("event_id", event.ID),
			zap.String("level", string(event.Level)),
			zap.String("reason", string(reason)))
	}
	return event, nil
}

// notifyAll fires the three escalation channels. Each channel fires at
// most once per event, decided by a conditional flag flip, and a failing
// channel never blocks the others.
func (s *CrisisService) notifyAll(ctx context.Context, ticket *domain.Ticket, event *domain.CrisisEvent) {
	channels := []domain.NotifyChannel{domain.NotifyContacts, domain.NotifyAdmin, domain.NotifySecurity}
	for _, channel := range channels {
		won, err := s.crisisEvents.MarkNotified(ctx, event.ID, channel)
		if err != nil {
			s.logger.Error("failed to mark crisis notification",
				zap.String("event_id", event.ID),
				zap.String("channel", string(channel)),
				zap.Error(err))
			continue
		}
		if !won {
			continue
		}
		payload := NotificationPayload{
			TicketID:  ticket.ID,
			EventID:   event.ID,
			StudentID: ticket.StudentID,
			Level:     event.Level,
			Reason:    event.TriggerReason,
			Summary:   fmt.Sprintf("critical crisis on ticket %s", ticket.TicketNumber),
		}
		if err := s.notifier.Notify(ctx, channel, payload); err != nil {
			s.logger.Error("crisis notification failed",
				zap.String("event_id", event.ID),
				zap.String("channel", string(channel)),
				zap.Error(err))
		}
	}
}

// Acknowledge stamps the event as seen by a counselor.
func (s *CrisisService) Acknowledge(ctx context.Context, actor *domain.User, eventID string) (*domain.CrisisEvent, error) {
	if actor == nil || !(actor.Role.Counselor() || actor.Role == domain.RoleAdmin) {
		return nil, apperrors.NewNotAuthorized("only counselors may acknowledge crisis events")
	}
	if err := s.crisisEvents.Acknowledge(ctx, eventID, time.Now()); err != nil {
		return nil, apperrors.MapError(err)
	}
	event, err := s.crisisEvents.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return event, nil
}

// ResolveEvent closes a crisis event with notes. The ticket's crisis
// level is deliberately left at its high-water mark; the event record,
// not the ticket, says whether the situation is handled.
func (s *CrisisService) ResolveEvent(ctx context.Context, actor *domain.User, eventID, notes string) (*domain.CrisisEvent, error) {
	if actor == nil || !(actor.Role.Counselor() || actor.Role == domain.RoleAdmin) {
		return nil, apperrors.NewNotAuthorized("only counselors may resolve crisis events")
	}
	if err := s.crisisEvents.Resolve(ctx, eventID, actor.ID, notes, time.Now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conditional update misses both unknown ids and events
			// resolved earlier; a lookup tells the two apart.
			if _, lookupErr := s.crisisEvents.GetByID(ctx, eventID); lookupErr != nil {
				return nil, apperrors.MapError(lookupErr)
			}
			return nil, apperrors.NewInvalidState("crisis event already resolved", nil)
		}
		return nil, apperrors.MapError(err)
	}
	event, err := s.crisisEvents.GetByID(ctx, eventID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCrisisResolved,
		TicketID:  event.TicketID,
		ActorID:   actor.ID,
		Timestamp: time.Now(),
		Payload: events.CrisisResolvedPayload{
			EventID:    event.ID,
			ResolvedBy: actor.ID,
		},
	})
	return event, nil
}

// ListRecent returns the newest crisis events for the admin dashboard.
func (s *CrisisService) ListRecent(ctx context.Context, actor *domain.User, limit int) ([]domain.CrisisEvent, error) {
	if actor == nil || actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewNotAuthorized("only admins may list crisis events")
	}
	list, err := s.crisisEvents.ListRecent(ctx, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

const (
	assessmentQuestions = 20
	assessmentMaxScore  = 100
)

// QuestionResponse is one answered assessment question.
type QuestionResponse struct {
	Question int `json:"question"`
	Score    int `json:"score"`
}

// SubmitAssessmentInput carries a complete self-assessment submission.
type SubmitAssessmentInput struct {
	Responses []QuestionResponse
	Notes     string
}

// SubmitAssessment scores the 20-question wellbeing self-assessment,
// stores the result and escalates when the severity band calls for
// follow-up. Concerning maps to a high crisis event and Critical to a
// critical one, attached to the student's latest open ticket; with no
// open ticket the admin channel is notified directly.
func (s *CrisisService) SubmitAssessment(ctx context.Context, student *domain.User, input SubmitAssessmentInput) (*domain.Assessment, error) {
	if student == nil {
		return nil, apperrors.NewUnauthenticated("missing principal")
	}
	breakdown, score, err := scoreAssessment(input.Responses)
	if err != nil {
		return nil, err
	}

	assessment := &domain.Assessment{
		StudentID: student.ID,
		Type:      "wellbeing",
		Score:     score,
		MaxScore:  assessmentMaxScore,
		Severity:  severityForScore(score),
		Breakdown: breakdown,
		Notes:     strings.TrimSpace(input.Notes),
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		return nil, apperrors.MapError(err)
	}

	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		ActorID:   student.ID,
		Type:      events.EventAssessmentSubmitted,
		Timestamp: time.Now(),
		Payload: events.AssessmentSubmittedPayload{
			AssessmentID: assessment.ID,
			Score:        assessment.Score,
			Severity:     assessment.Severity,
		},
	})

	if assessment.Severity.NeedsFollowUp() {
		s.escalateAssessment(ctx, student, assessment)
	}
	return assessment, nil
}

// ListAssessments returns the student's own submissions; admins may view
// any student's.
func (s *CrisisService) ListAssessments(ctx context.Context, actor *domain.User, studentID string, limit int) ([]domain.Assessment, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthenticated("missing principal")
	}
	if actor.ID != studentID && actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewNotAuthorized("may only view own assessments")
	}
	list, err := s.assessments.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

func (s *CrisisService) escalateAssessment(ctx context.Context, student *domain.User, assessment *domain.Assessment) {
	level := domain.CrisisLevelHigh
	if assessment.Severity == domain.SeverityCritical {
		level = domain.CrisisLevelCritical
	}

	ticket, err := s.tickets.LatestOpenByStudent(ctx, student.ID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("failed to look up open ticket for assessment escalation",
				zap.String("student_id", student.ID), zap.Error(err))
			return
		}
		// No open ticket to attach the event to; alert staff directly so
		// the signal is not lost.
		payload := NotificationPayload{
			StudentID: student.ID,
			Level:     level,
			Reason:    domain.TriggerAssessmentScore,
			Summary:   fmt.Sprintf("assessment scored %d/%d (%s) with no open ticket", assessment.Score, assessment.MaxScore, assessment.Severity),
		}
		if err := s.notifier.Notify(ctx, domain.NotifyAdmin, payload); err != nil {
			s.logger.Error("assessment escalation notification failed",
				zap.String("student_id", student.ID), zap.Error(err))
		}
		return
	}

	if _, err := s.raise(ctx, ticket.ID, level, domain.TriggerAssessmentScore, false, nil); err != nil {
		s.logger.Error("failed to raise crisis event from assessment",
			zap.String("ticket_id", ticket.ID),
			zap.String("assessment_id", assessment.ID),
			zap.Error(err))
	}
}

// scoreAssessment validates the responses and computes category
// sub-scores: questions 1-6 mental, 7-12 emotional, 13-18 social and
// 19-20 needs awareness, each answer scored 1 to 5.
func scoreAssessment(responses []QuestionResponse) (domain.AssessmentBreakdown, int, error) {
	var breakdown domain.AssessmentBreakdown
	if len(responses) != assessmentQuestions {
		return breakdown, 0, apperrors.NewValidationError(
			fmt.Sprintf("assessment requires exactly %d responses", assessmentQuestions),
			map[string]any{"received": len(responses)})
	}

	sorted := make([]QuestionResponse, len(responses))
	copy(sorted, responses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Question < sorted[j].Question })

	total := 0
	for i, resp := range sorted {
		if resp.Question != i+1 {
			return breakdown, 0, apperrors.NewValidationError(
				"responses must cover questions 1 through 20 exactly once",
				map[string]any{"question": resp.Question})
		}
		if resp.Score < 1 || resp.Score > 5 {
			return breakdown, 0, apperrors.NewValidationError(
				"each response scores between 1 and 5",
				map[string]any{"question": resp.Question, "score": resp.Score})
		}
		total += resp.Score
		switch {
		case resp.Question <= 6:
			breakdown.MentalHealth += resp.Score
		case resp.Question <= 12:
			breakdown.EmotionalHealth += resp.Score
		case resp.Question <= 18:
			breakdown.SocialHealth += resp.Score
		default:
			breakdown.NeedsAwareness += resp.Score
		}
	}
	return breakdown, total, nil
}

// severityForScore maps the total score to its wellbeing band.
func severityForScore(score int) domain.Severity {
	switch {
	case score >= 85:
		return domain.SeverityExcellent
	case score >= 70:
		return domain.SeverityGood
	case score >= 50:
		return domain.SeverityModerate
	case score >= 30:
		return domain.SeverityConcerning
	default:
		return domain.SeverityCritical
	}
}
