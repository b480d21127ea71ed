package domain

import "time"

// DeliveryState is a best-effort delivery marker; there is no receipt
// protocol, undelivered messages stay retrievable via history fetch.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
)

// Message is one chat entry on a ticket. The broker is the sole writer;
// once persisted a message is immutable. CreatedAt is server-assigned and
// strictly increasing within a ticket.
type Message struct {
	ID            string
	TicketID      string
	SenderID      string
	Body          string
	DeliveryState DeliveryState
	CreatedAt     time.Time
}
