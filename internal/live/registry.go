package live

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session is the ephemeral record of one party attached to one ticket's
// stream. It is never persisted and dies with the connection.
type Session struct {
	TicketID    string
	PartyID     string
	Channel     *Channel
	ConnectedAt time.Time
}

// Registry is the authoritative map of live sessions: at most one per
// (ticket, party) pair. A reconnect replaces, never duplicates, the prior
// handle.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Session // ticketID -> partyID -> session
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Session),
		logger:   logger,
	}
}

// Attach binds a party's channel to a ticket, replacing and closing any
// superseded channel for the same pair.
func (r *Registry) Attach(ticketID, partyID string, ch *Channel) *Session {
	session := &Session{
		TicketID:    ticketID,
		PartyID:     partyID,
		Channel:     ch,
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	parties, ok := r.sessions[ticketID]
	if !ok {
		parties = make(map[string]*Session)
		r.sessions[ticketID] = parties
	}
	superseded := parties[partyID]
	parties[partyID] = session
	r.mu.Unlock()

	if superseded != nil {
		// Close asynchronously so a reconnect never blocks on the old socket.
		go superseded.Channel.Close()
		r.logger.Debug("live session replaced",
			zap.String("ticket_id", ticketID),
			zap.String("party_id", partyID))
	}
	return session
}

// Detach removes the party's session. Idempotent; only removes the entry
// when it still points at the given channel, so a stale disconnect never
// tears down a newer session.
func (r *Registry) Detach(ticketID, partyID string, ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parties, ok := r.sessions[ticketID]
	if !ok {
		return
	}
	session, ok := parties[partyID]
	if !ok || session.Channel != ch {
		return
	}
	delete(parties, partyID)
	if len(parties) == 0 {
		delete(r.sessions, ticketID)
	}
}

// Broadcast enqueues the payload on every attached channel for the ticket,
// except the optionally excluded party. Returns the party ids that
// accepted the payload. Silently drops when nobody is attached; persisted
// messages remain retrievable via history.
func (r *Registry) Broadcast(ticketID string, payload any, excludePartyID string) []string {
	r.mu.RLock()
	parties := r.sessions[ticketID]
	targets := make([]*Session, 0, len(parties))
	for partyID, session := range parties {
		if excludePartyID != "" && partyID == excludePartyID {
			continue
		}
		targets = append(targets, session)
	}
	r.mu.RUnlock()

	delivered := make([]string, 0, len(targets))
	for _, session := range targets {
		if err := session.Channel.Send(payload); err != nil {
			r.logger.Warn("live fan-out failed",
				zap.String("ticket_id", ticketID),
				zap.String("party_id", session.PartyID),
				zap.Error(err))
			continue
		}
		delivered = append(delivered, session.PartyID)
	}
	return delivered
}

// Attached reports whether the party currently has a live session.
func (r *Registry) Attached(ticketID, partyID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parties, ok := r.sessions[ticketID]
	if !ok {
		return false
	}
	_, ok = parties[partyID]
	return ok
}

// Count returns the number of live sessions on a ticket.
func (r *Registry) Count(ticketID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[ticketID])
}
