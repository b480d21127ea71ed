package domain

import "time"

// TicketStatus enumerates lifecycle states for counseling tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "new"
	TicketStatusAssigned TicketStatus = "assigned"
	TicketStatusActive   TicketStatus = "active"
	TicketStatusFollowUp TicketStatus = "follow_up"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// RequiresAssignee reports whether a ticket in this status must carry an
// assigned counselor. Assignee presence and status move together: a ticket
// is assigned, active or in follow_up exactly while a counselor holds it.
func (s TicketStatus) RequiresAssignee() bool {
	switch s {
	case TicketStatusAssigned, TicketStatusActive, TicketStatusFollowUp:
		return true
	}
	return false
}

// CrisisLevel is the ordered severity classification attached to a ticket.
type CrisisLevel string

const (
	CrisisLevelNone     CrisisLevel = "none"
	CrisisLevelLow      CrisisLevel = "low"
	CrisisLevelMedium   CrisisLevel = "medium"
	CrisisLevelHigh     CrisisLevel = "high"
	CrisisLevelCritical CrisisLevel = "critical"
)

var crisisLevelRank = map[CrisisLevel]int{
	CrisisLevelNone:     0,
	CrisisLevelLow:      1,
	CrisisLevelMedium:   2,
	CrisisLevelHigh:     3,
	CrisisLevelCritical: 4,
}

// Rank returns the ordinal position of the level; unknown levels rank below none.
func (l CrisisLevel) Rank() int {
	rank, ok := crisisLevelRank[l]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether the level is one of the known severities.
func (l CrisisLevel) Valid() bool {
	_, ok := crisisLevelRank[l]
	return ok
}

// Ticket is a bounded counseling conversation between one student and at
// most one counselor.
type Ticket struct {
	ID                    string
	TicketNumber          string
	StudentID             string
	CounselorID           *string
	Category              string
	Status                TicketStatus
	CrisisLevel           CrisisLevel
	Priority              int
	InitialMessage        string
	ForcedFollowUpEventID *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	AssignedAt            *time.Time
	ClosedAt              *time.Time
}

// IsParty reports whether the user id is the ticket owner or assignee.
func (t *Ticket) IsParty(userID string) bool {
	if t.StudentID == userID {
		return true
	}
	return t.CounselorID != nil && *t.CounselorID == userID
}

// Terminal reports whether no further messages may be exchanged.
func (t *Ticket) Terminal() bool {
	return t.Status == TicketStatusResolved || t.Status == TicketStatusClosed
}

// CanSend reports whether the user may post a chat message on the ticket.
// Party relationship, not role names, decides access.
func (t *Ticket) CanSend(u *User) bool {
	if u == nil {
		return false
	}
	return t.IsParty(u.ID)
}

// CanClaim reports whether the user may claim the ticket from the queue.
func (t *Ticket) CanClaim(u *User) bool {
	if u == nil {
		return false
	}
	return u.Role.Counselor() || u.Role == RoleAdmin
}

// CanView reports whether the user may read the ticket and its thread.
func (t *Ticket) CanView(u *User) bool {
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	return t.IsParty(u.ID)
}

// CanTransition reports whether the user may drive status transitions.
func (t *Ticket) CanTransition(u *User) bool {
	if u == nil {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	return t.CounselorID != nil && *t.CounselorID == u.ID
}
