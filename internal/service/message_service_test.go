package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/live"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

func activeTicket(t *testing.T, env *testEnv) *domain.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket, err := env.createTicket(ctx, CreateTicketInput{})
	require.NoError(t, err)
	_, err = env.assignSvc.Claim(ctx, counselorA, ticket.ID)
	require.NoError(t, err)
	after, err := env.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	return after
}

func TestSendPersistsAndValidates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	msg, err := env.messageSvc.Send(ctx, ticket.ID, testStudent, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, testStudent.ID, msg.SenderID)
	assert.NotEmpty(t, msg.ID)

	_, err = env.messageSvc.Send(ctx, ticket.ID, testStudent, "   ")
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestSendRejectsNonParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	_, err := env.messageSvc.Send(ctx, ticket.ID, testOther, "let me in")
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	_, err = env.messageSvc.Send(ctx, ticket.ID, counselorB, "me too")
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))
}

func TestSendRejectsTerminalTicket(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	_, err := env.messageSvc.Send(ctx, ticket.ID, counselorA, "wrapping up")
	require.NoError(t, err)
	_, err = env.ticketSvc.Transition(ctx, counselorA, ticket.ID, domain.TicketStatusResolved)
	require.NoError(t, err)
	_, err = env.ticketSvc.Transition(ctx, testAdmin, ticket.ID, domain.TicketStatusClosed)
	require.NoError(t, err)

	before, err := env.messages.ListByTicket(ctx, ticket.ID, 0)
	require.NoError(t, err)

	_, err = env.messageSvc.Send(ctx, ticket.ID, testStudent, "one more thing")
	assert.True(t, apperrors.IsCode(err, "INVALID_STATE"))

	// Nothing was persisted by the rejected send.
	after, err := env.messages.ListByTicket(ctx, ticket.ID, 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestTimestampsStrictlyIncreasing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	for i := 0; i < 20; i++ {
		sender := testStudent
		if i%2 == 1 {
			sender = counselorA
		}
		_, err := env.messageSvc.Send(ctx, ticket.ID, sender, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	thread, err := env.messages.ListByTicket(ctx, ticket.ID, 0)
	require.NoError(t, err)
	require.Len(t, thread, 20)
	for i := 1; i < len(thread); i++ {
		assert.Truef(t, thread[i].CreatedAt.After(thread[i-1].CreatedAt),
			"message %d (%v) not after message %d (%v)",
			i, thread[i].CreatedAt, i-1, thread[i-1].CreatedAt)
	}
}

func TestBroadcastMarksDelivered(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	conn := &fakeConn{}
	ch := live.NewChannel(conn, 16, time.Second)
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, counselorA, ch, nil))

	msg, err := env.messageSvc.Send(ctx, ticket.ID, testStudent, "are you there?")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, msg.DeliveryState)

	require.True(t, conn.waitFrames(1, time.Second))
	var envelope live.MessageEnvelope
	require.NoError(t, json.Unmarshal(conn.frame(0), &envelope))
	assert.Equal(t, msg.ID, envelope.ID)
	assert.Equal(t, testStudent.ID, envelope.SenderID)
	assert.Equal(t, "are you there?", envelope.Body)
}

func TestSenderSessionReceivesEcho(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	conn := &fakeConn{}
	ch := live.NewChannel(conn, 16, time.Second)
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, testStudent, ch, nil))

	// A message posted over REST still echoes on the sender's own open
	// stream, so every connected device sees the full thread.
	msg, err := env.messageSvc.Send(ctx, ticket.ID, testStudent, "just me here")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, msg.DeliveryState)

	require.True(t, conn.waitFrames(1, time.Second))
	var envelope live.MessageEnvelope
	require.NoError(t, json.Unmarshal(conn.frame(0), &envelope))
	assert.Equal(t, msg.ID, envelope.ID)
	assert.Equal(t, "just me here", envelope.Body)

	// The echo counts as delivered, so the sender's cursor moved.
	cursor, ok, err := env.cursors.Get(ctx, ticket.ID, testStudent.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cursor.Equal(msg.CreatedAt))
}

func TestOfflineSenderSeesOwnMessageOnReplay(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	// Sender has no live session; the cursor must not move, or the
	// message would be skipped forever on the next replay.
	msg, err := env.messageSvc.Send(ctx, ticket.ID, testStudent, "posted while offline")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySent, msg.DeliveryState)

	_, ok, err := env.cursors.Get(ctx, ticket.ID, testStudent.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	conn := &fakeConn{}
	ch := live.NewChannel(conn, 16, time.Second)
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, testStudent, ch, nil))

	require.True(t, conn.waitFrames(1, time.Second))
	var envelope live.MessageEnvelope
	require.NoError(t, json.Unmarshal(conn.frame(0), &envelope))
	assert.Equal(t, msg.ID, envelope.ID)
	assert.Equal(t, "posted while offline", envelope.Body)
}

func TestAttachRequiresParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	conn := &fakeConn{}
	ch := live.NewChannel(conn, 16, time.Second)
	err := env.messageSvc.Attach(ctx, ticket.ID, testOther, ch, nil)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	// Admins can view tickets but do not hold live party sessions.
	err = env.messageSvc.Attach(ctx, ticket.ID, testAdmin, ch, nil)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))
}

func TestReconnectReplaysMissedMessagesOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	// Student is attached and sees the first message live.
	conn1 := &fakeConn{}
	ch1 := live.NewChannel(conn1, 16, time.Second)
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, testStudent, ch1, nil))

	first, err := env.messageSvc.Send(ctx, ticket.ID, counselorA, "before disconnect")
	require.NoError(t, err)
	require.True(t, conn1.waitFrames(1, time.Second))

	// Student disconnects; three messages arrive in the meantime.
	env.messageSvc.Detach(ticket.ID, testStudent.ID, ch1)
	ch1.Close()

	for i := 1; i <= 3; i++ {
		_, err := env.messageSvc.Send(ctx, ticket.ID, counselorA, fmt.Sprintf("missed %d", i))
		require.NoError(t, err)
	}

	// Reconnect with the last-seen cursor: exactly the three missed
	// messages replay, in order, before any live traffic.
	conn2 := &fakeConn{}
	ch2 := live.NewChannel(conn2, 16, time.Second)
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, testStudent, ch2, &first.CreatedAt))

	_, err = env.messageSvc.Send(ctx, ticket.ID, counselorA, "after reconnect")
	require.NoError(t, err)

	require.True(t, conn2.waitFrames(4, time.Second))
	assert.Equal(t, 4, conn2.frameCount())

	wantBodies := []string{"missed 1", "missed 2", "missed 3", "after reconnect"}
	for i, want := range wantBodies {
		var envelope live.MessageEnvelope
		require.NoError(t, json.Unmarshal(conn2.frame(i), &envelope))
		assert.Equal(t, want, envelope.Body)
	}
}

func TestReconnectReplacesStaleSession(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	conn1 := &fakeConn{}
	ch1 := live.NewChannel(conn1, 16, time.Second)
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, testStudent, ch1, nil))

	// Reconnect without detaching first; the registry swaps the handle.
	conn2 := &fakeConn{}
	ch2 := live.NewChannel(conn2, 16, time.Second)
	now := time.Now()
	require.NoError(t, env.messageSvc.Attach(ctx, ticket.ID, testStudent, ch2, &now))

	_, err := env.messageSvc.Send(ctx, ticket.ID, counselorA, "only the new handle hears this")
	require.NoError(t, err)

	require.True(t, conn2.waitFrames(1, time.Second))
	assert.Equal(t, 1, env.registry.Count(ticket.ID))

	// A stale disconnect from the replaced channel must not tear down
	// the new session.
	env.messageSvc.Detach(ticket.ID, testStudent.ID, ch1)
	assert.True(t, env.registry.Attached(ticket.ID, testStudent.ID))
}

func TestPreviewKeepsRuneBoundary(t *testing.T) {
	short := "short ✓ message"
	assert.Equal(t, short, preview(short))

	// A multibyte character straddling the cut must not be split.
	long := strings.Repeat("a", 79) + "日本語"
	got := preview(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 79), got)
}

func TestHistoryAuthorization(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	ticket := activeTicket(t, env)

	_, err := env.messageSvc.Send(ctx, ticket.ID, testStudent, "hello")
	require.NoError(t, err)

	_, err = env.messageSvc.History(ctx, testOther, ticket.ID, nil, 0)
	assert.True(t, apperrors.IsCode(err, "NOT_AUTHORIZED"))

	msgs, err := env.messageSvc.History(ctx, testAdmin, ticket.ID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
