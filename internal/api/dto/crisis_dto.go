package dto

import (
	"time"

	"github.com/campuscare/counseling-service/internal/domain"
)

// ReportCrisisRequest payload for manual crisis reports.
type ReportCrisisRequest struct {
	Level domain.CrisisLevel `json:"level"`
}

// ResolveCrisisRequest payload.
type ResolveCrisisRequest struct {
	Notes string `json:"notes"`
}

// CrisisEventResponse represents a crisis event.
type CrisisEventResponse struct {
	ID               string               `json:"id"`
	TicketID         string               `json:"ticket_id"`
	Level            domain.CrisisLevel   `json:"level"`
	TriggerReason    domain.CrisisTrigger `json:"trigger_reason"`
	AutoDetected     bool                 `json:"auto_detected"`
	NotifiedContacts bool                 `json:"notified_contacts"`
	NotifiedAdmin    bool                 `json:"notified_admin"`
	NotifiedSecurity bool                 `json:"notified_security"`
	ResolutionNotes  string               `json:"resolution_notes,omitempty"`
	ResolvedBy       *string              `json:"resolved_by,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	AcknowledgedAt   *time.Time           `json:"acknowledged_at"`
	ResolvedAt       *time.Time           `json:"resolved_at"`
}

// NewCrisisEventResponse maps a domain crisis event.
func NewCrisisEventResponse(event *domain.CrisisEvent) CrisisEventResponse {
	return CrisisEventResponse{
		ID:               event.ID,
		TicketID:         event.TicketID,
		Level:            event.Level,
		TriggerReason:    event.TriggerReason,
		AutoDetected:     event.AutoDetected,
		NotifiedContacts: event.NotifiedContacts,
		NotifiedAdmin:    event.NotifiedAdmin,
		NotifiedSecurity: event.NotifiedSecurity,
		ResolutionNotes:  event.ResolutionNotes,
		ResolvedBy:       event.ResolvedBy,
		CreatedAt:        event.CreatedAt,
		AcknowledgedAt:   event.AcknowledgedAt,
		ResolvedAt:       event.ResolvedAt,
	}
}
