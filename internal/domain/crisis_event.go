package domain

import "time"

// CrisisTrigger captures what raised a crisis event.
type CrisisTrigger string

const (
	TriggerAutoKeyword     CrisisTrigger = "auto_keyword"
	TriggerManual          CrisisTrigger = "manual"
	TriggerAssessmentScore CrisisTrigger = "assessment_score"
)

// NotifyChannel enumerates external escalation channels.
type NotifyChannel string

const (
	NotifyContacts NotifyChannel = "contacts"
	NotifyAdmin    NotifyChannel = "admin"
	NotifySecurity NotifyChannel = "security"
)

// CrisisEvent records a detected or reported elevated risk condition tied
// to a ticket. At most one unresolved event exists per ticket; a new
// trigger while one is open upgrades its level instead of duplicating it.
type CrisisEvent struct {
	ID               string
	TicketID         string
	Level            CrisisLevel
	TriggerReason    CrisisTrigger
	AutoDetected     bool
	NotifiedContacts bool
	NotifiedAdmin    bool
	NotifiedSecurity bool
	ResolutionNotes  string
	ResolvedBy       *string
	CreatedAt        time.Time
	AcknowledgedAt   *time.Time
	ResolvedAt       *time.Time
}

// Resolved reports whether the event has been closed by a counselor.
func (e *CrisisEvent) Resolved() bool {
	return e.ResolvedAt != nil
}
