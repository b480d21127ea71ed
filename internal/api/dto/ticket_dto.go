package dto

import (
	"time"

	"github.com/campuscare/counseling-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Category       string             `json:"category"`
	InitialMessage string             `json:"initial_message"`
	CrisisLevel    domain.CrisisLevel `json:"crisis_level"`
	Priority       int                `json:"priority"`
	CounselorID    *string            `json:"counselor_id"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignRequest payload for admin-directed assignment.
type AssignRequest struct {
	CounselorID string `json:"counselor_id"`
}

// SendMessageRequest payload.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// TicketSummary response.
type TicketSummary struct {
	ID           string              `json:"id"`
	TicketNumber string              `json:"ticket_number"`
	StudentID    string              `json:"student_id"`
	CounselorID  *string             `json:"counselor_id"`
	Category     string              `json:"category"`
	Status       domain.TicketStatus `json:"status"`
	CrisisLevel  domain.CrisisLevel  `json:"crisis_level"`
	Priority     int                 `json:"priority"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info with its thread.
type TicketDetailResponse struct {
	TicketSummary
	InitialMessage string            `json:"initial_message"`
	AssignedAt     *time.Time        `json:"assigned_at"`
	ClosedAt       *time.Time        `json:"closed_at"`
	Messages       []MessageResponse `json:"messages"`
}

// MessageResponse represents one thread message.
type MessageResponse struct {
	ID            string               `json:"id"`
	TicketID      string               `json:"ticket_id"`
	SenderID      string               `json:"sender_id"`
	Body          string               `json:"body"`
	DeliveryState domain.DeliveryState `json:"delivery_state"`
	CreatedAt     time.Time            `json:"created_at"`
}

// HistoryEntryResponse represents one audit trail entry.
type HistoryEntryResponse struct {
	ID         string                  `json:"id"`
	ChangedBy  *string                 `json:"changed_by"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

// NewTicketSummary maps a domain ticket.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:           ticket.ID,
		TicketNumber: ticket.TicketNumber,
		StudentID:    ticket.StudentID,
		CounselorID:  ticket.CounselorID,
		Category:     ticket.Category,
		Status:       ticket.Status,
		CrisisLevel:  ticket.CrisisLevel,
		Priority:     ticket.Priority,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

// NewTicketDetail maps a ticket with its messages.
func NewTicketDetail(ticket *domain.Ticket, msgs []domain.Message) TicketDetailResponse {
	out := TicketDetailResponse{
		TicketSummary:  NewTicketSummary(ticket),
		InitialMessage: ticket.InitialMessage,
		AssignedAt:     ticket.AssignedAt,
		ClosedAt:       ticket.ClosedAt,
		Messages:       make([]MessageResponse, 0, len(msgs)),
	}
	for i := range msgs {
		out.Messages = append(out.Messages, NewMessageResponse(&msgs[i]))
	}
	return out
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(msg *domain.Message) MessageResponse {
	return MessageResponse{
		ID:            msg.ID,
		TicketID:      msg.TicketID,
		SenderID:      msg.SenderID,
		Body:          msg.Body,
		DeliveryState: msg.DeliveryState,
		CreatedAt:     msg.CreatedAt,
	}
}

// NewHistoryEntry maps an audit entry.
func NewHistoryEntry(entry *domain.TicketHistory) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:         entry.ID,
		ChangedBy:  entry.ChangedByID,
		ChangeType: entry.ChangeType,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		CreatedAt:  entry.CreatedAt,
	}
}
