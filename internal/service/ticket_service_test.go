package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/events"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

func TestCreateTicketDefaults(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{Category: "Anxiety", InitialMessage: "I feel hopeless"})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, domain.CrisisLevelNone, ticket.CrisisLevel)
	assert.Nil(t, ticket.CounselorID)
	assert.Regexp(t, `^TKT-\d{8}-[0-9A-F]{6}$`, ticket.TicketNumber)
	assert.True(t, pairingInvariantHolds(ticket))
	assert.Len(t, env.dispatcher.byType(events.EventTicketCreated), 1)
}

func TestCreateTicketSelfReportNotEscalated(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// The stated crisis level is taken verbatim; the initial message body
	// never goes through the keyword evaluator.
	ticket, err := env.createTicket(ctx, CreateTicketInput{
		Category:       "Anxiety",
		InitialMessage: "I feel hopeless",
		CrisisLevel:    domain.CrisisLevelNone,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusNew, ticket.Status)
	assert.Equal(t, domain.CrisisLevelNone, ticket.CrisisLevel)
	_, err = env.crisisEvents.GetUnresolvedByTicket(ctx, ticket.ID)
	assert.Error(t, err)
}

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.ticketSvc.Create(ctx, testStudent, CreateTicketInput{InitialMessage: "hi"})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = env.ticketSvc.Create(ctx, testStudent, CreateTicketInput{Category: "Anxiety"})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	_, err = env.ticketSvc.Create(ctx, testStudent, CreateTicketInput{
		Category: "Anxiety", InitialMessage: "hi", CrisisLevel: "severe",
	})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestCreateTicketWithPreselectedCounselor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{CounselorID: &counselorA.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	require.NotNil(t, ticket.CounselorID)
	assert.Equal(t, counselorA.ID, *ticket.CounselorID)
	assert.NotNil(t, ticket.AssignedAt)
	assert.True(t, pairingInvariantHolds(ticket))

	// A student cannot be picked as the counselor.
	_, err = env.createTicket(ctx, CreateTicketInput{CounselorID: &testOther.ID})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to domain.TicketStatus
		allowed  bool
	}{
		{domain.TicketStatusNew, domain.TicketStatusAssigned, true},
		{domain.TicketStatusNew, domain.TicketStatusActive, false},
		{domain.TicketStatusNew, domain.TicketStatusClosed, false},
		{domain.TicketStatusAssigned, domain.TicketStatusActive, true},
		{domain.TicketStatusAssigned, domain.TicketStatusFollowUp, true},
		{domain.TicketStatusAssigned, domain.TicketStatusResolved, false},
		{domain.TicketStatusActive, domain.TicketStatusFollowUp, true},
		{domain.TicketStatusActive, domain.TicketStatusResolved, true},
		{domain.TicketStatusActive, domain.TicketStatusNew, false},
		{domain.TicketStatusFollowUp, domain.TicketStatusActive, true},
		{domain.TicketStatusFollowUp, domain.TicketStatusResolved, true},
		{domain.TicketStatusResolved, domain.TicketStatusClosed, true},
		{domain.TicketStatusResolved, domain.TicketStatusActive, false},
		{domain.TicketStatusClosed, domain.TicketStatusResolved, false},
		{domain.TicketStatusActive, domain.TicketStatusActive, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, isValidTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionCannotAssignWithoutCounselor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)

	// assigned is only reachable through claim or assignment; a bare
	// status write would pair the ticket with nobody.
	_, err = env.ticketSvc.Transition(ctx, testAdmin, ticket.ID, domain.TicketStatusAssigned)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))

	after, err := env.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, after.Status)
	assert.Nil(t, after.CounselorID)
	assert.True(t, pairingInvariantHolds(after))

	// The same ticket is still claimable afterwards.
	claimed, err := env.assignSvc.Claim(ctx, counselorA, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, claimed.Status)
}

func TestTransitionAuthorization(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)
	_, err = env.assignSvc.Claim(ctx, counselorA, ticket.ID)
	require.NoError(t, err)

	// The other counselor is not the assignee.
	_, err = env.ticketSvc.Transition(ctx, counselorB, ticket.ID, domain.TicketStatusActive)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	// The student cannot drive transitions either.
	_, err = env.ticketSvc.Transition(ctx, testStudent, ticket.ID, domain.TicketStatusActive)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	// The assignee can.
	updated, err := env.ticketSvc.Transition(ctx, counselorA, ticket.ID, domain.TicketStatusActive)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, updated.Status)
	assert.True(t, pairingInvariantHolds(updated))
}

func TestTransitionInvalidEdge(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)
	_, err = env.assignSvc.Claim(ctx, counselorA, ticket.ID)
	require.NoError(t, err)

	_, err = env.ticketSvc.Transition(ctx, counselorA, ticket.ID, domain.TicketStatusClosed)
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"))
}

func TestResolveReleasesAssignee(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)
	_, err = env.assignSvc.Claim(ctx, counselorA, ticket.ID)
	require.NoError(t, err)
	_, err = env.ticketSvc.Transition(ctx, counselorA, ticket.ID, domain.TicketStatusActive)
	require.NoError(t, err)

	resolved, err := env.ticketSvc.Transition(ctx, counselorA, ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)
	assert.Nil(t, resolved.CounselorID)
	assert.True(t, pairingInvariantHolds(resolved))

	// Closing stamps ClosedAt; only an admin can still act since the
	// assignee was released.
	closed, err := env.ticketSvc.Transition(ctx, testAdmin, ticket.ID, domain.TicketStatusClosed)
	require.NoError(t, err)
	assert.NotNil(t, closed.ClosedAt)
	assert.True(t, pairingInvariantHolds(closed))

	entries := env.history.byType(domain.ChangeTypeAssignee)
	assert.NotEmpty(t, entries)
}

func TestRecordActivityActivatesAssignedTicket(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)
	_, err = env.assignSvc.Claim(ctx, counselorA, ticket.ID)
	require.NoError(t, err)

	_, err = env.messageSvc.Send(ctx, ticket.ID, counselorA, "hello, I picked up your ticket")
	require.NoError(t, err)

	after, err := env.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusActive, after.Status)
	assert.True(t, pairingInvariantHolds(after))
}

func TestForceFollowUpKeepsNewTicketClaimable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)

	err = env.ticketSvc.ForceFollowUp(ctx, ticket, "event-1")
	require.NoError(t, err)

	after, err := env.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusNew, after.Status)
	assert.Nil(t, after.ForcedFollowUpEventID)
	assert.True(t, pairingInvariantHolds(after))
}

func TestListScopedByRole(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	mine, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)
	other, err := env.ticketSvc.Create(ctx, testOther, CreateTicketInput{Category: "Stress", InitialMessage: "exams"})
	require.NoError(t, err)
	_, err = env.assignSvc.Claim(ctx, counselorA, other.ID)
	require.NoError(t, err)

	studentView, err := env.ticketSvc.List(ctx, testStudent, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, studentView, 1)
	assert.Equal(t, mine.ID, studentView[0].ID)

	counselorView, err := env.ticketSvc.List(ctx, counselorA, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, counselorView, 1)
	assert.Equal(t, other.ID, counselorView[0].ID)

	adminView, err := env.ticketSvc.List(ctx, testAdmin, nil, 0, 0)
	require.NoError(t, err)
	assert.Len(t, adminView, 2)
}

func TestGetRequiresParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)

	_, err = env.ticketSvc.Get(ctx, testOther, ticket.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	got, err := env.ticketSvc.Get(ctx, testAdmin, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)

	_, err = env.ticketSvc.Get(ctx, testStudent, "missing")
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
}
