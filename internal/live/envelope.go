package live

import (
	"time"

	"github.com/campuscare/counseling-service/internal/domain"
)

// MessageEnvelope is the wire shape for every chat frame pushed to a
// live channel, for fresh fan-out and replay alike.
type MessageEnvelope struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessageEnvelope converts a persisted message to its wire shape.
func NewMessageEnvelope(msg *domain.Message) MessageEnvelope {
	return MessageEnvelope{
		ID:        msg.ID,
		TicketID:  msg.TicketID,
		SenderID:  msg.SenderID,
		Body:      msg.Body,
		CreatedAt: msg.CreatedAt,
	}
}
