package events

import (
	"time"

	"github.com/campuscare/counseling-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventMessageSent         EventType = "message_sent"
	EventCrisisRaised        EventType = "crisis_raised"
	EventCrisisResolved      EventType = "crisis_resolved"
	EventAssessmentSubmitted EventType = "assessment_submitted"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber string             `json:"ticket_number"`
	Category     string             `json:"category"`
	CrisisLevel  domain.CrisisLevel `json:"crisis_level"`
	Assigned     bool               `json:"assigned"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	CounselorID string `json:"counselor_id"`
	SelfClaimed bool   `json:"self_claimed"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Forced    bool                `json:"forced,omitempty"`
}

// MessageSentPayload payload.
type MessageSentPayload struct {
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	BodyPreview string `json:"body_preview"`
	Delivered   int    `json:"delivered"`
}

// CrisisRaisedPayload payload.
type CrisisRaisedPayload struct {
	EventID      string               `json:"event_id"`
	Level        domain.CrisisLevel   `json:"level"`
	Reason       domain.CrisisTrigger `json:"reason"`
	AutoDetected bool                 `json:"auto_detected"`
	Upgraded     bool                 `json:"upgraded"`
}

// CrisisResolvedPayload payload.
type CrisisResolvedPayload struct {
	EventID    string `json:"event_id"`
	ResolvedBy string `json:"resolved_by"`
}

// AssessmentSubmittedPayload payload.
type AssessmentSubmittedPayload struct {
	AssessmentID string          `json:"assessment_id"`
	Score        int             `json:"score"`
	Severity     domain.Severity `json:"severity"`
}
