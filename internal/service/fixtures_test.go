package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/config"
	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/live"
	"github.com/campuscare/counseling-service/internal/observability"
)

var (
	testStudent = &domain.User{ID: "student-1", Username: "sana", Role: domain.RoleStudent, Active: true}
	testOther   = &domain.User{ID: "student-2", Username: "milo", Role: domain.RoleStudent, Active: true}
	counselorA  = &domain.User{ID: "counselor-a", Username: "amara", Role: domain.RoleCounselor, Active: true}
	counselorB  = &domain.User{ID: "counselor-b", Username: "bruno", Role: domain.RolePeerCounselor, Active: true}
	testAdmin   = &domain.User{ID: "admin-1", Username: "root", Role: domain.RoleAdmin, Active: true}
)

func testCrisisConfig() config.CrisisConfig {
	return config.CrisisConfig{
		CriticalKeywords: []string{"kill myself", "suicide", "end my life", "want to die", "no reason to live"},
		HighKeywords:     []string{"self harm", "self-harm", "hurt myself", "cutting myself", "overdose"},
		MediumKeywords:   []string{"panic attack", "can't cope", "cant cope", "worthless"},
		LowKeywords:      []string{"very anxious", "can't sleep", "cant sleep"},
	}
}

type testEnv struct {
	tickets      *mockTicketRepo
	messages     *mockMessageRepo
	crisisEvents *mockCrisisRepo
	history      *mockHistoryRepo
	users        *mockUserRepo
	assessments  *mockAssessmentRepo
	notifier     *mockNotifier
	dispatcher   *capturingDispatcher
	registry     *live.Registry
	cursors      *memCursorStore

	ticketSvc  *TicketService
	assignSvc  *AssignmentService
	messageSvc *MessageService
	crisisSvc  *CrisisService
}

func newTestEnv() *testEnv {
	logger := zap.NewNop()
	env := &testEnv{
		tickets:      newMockTicketRepo(),
		messages:     newMockMessageRepo(),
		crisisEvents: newMockCrisisRepo(),
		history:      newMockHistoryRepo(),
		users:        newMockUserRepo(testStudent, testOther, counselorA, counselorB, testAdmin),
		assessments:  newMockAssessmentRepo(),
		notifier:     &mockNotifier{},
		dispatcher:   &capturingDispatcher{},
		registry:     live.NewRegistry(logger),
		cursors:      newMemCursorStore(),
	}

	locks := NewTicketLocks(2 * time.Second)
	metrics := observability.NewMetrics()

	env.ticketSvc = NewTicketService(TicketServiceDependencies{
		Tickets:    env.tickets,
		History:    env.history,
		Users:      env.users,
		Locks:      locks,
		Dispatcher: env.dispatcher,
		Logger:     logger,
	})
	env.assignSvc = NewAssignmentService(AssignmentServiceDependencies{
		Tickets:    env.tickets,
		History:    env.history,
		Users:      env.users,
		Dispatcher: env.dispatcher,
		Logger:     logger,
	})
	env.crisisSvc = NewCrisisService(CrisisServiceDependencies{
		CrisisEvents: env.crisisEvents,
		Tickets:      env.tickets,
		Assessments:  env.assessments,
		TicketSvc:    env.ticketSvc,
		Locks:        locks,
		Matcher:      NewKeywordMatcher(testCrisisConfig()),
		Notifier:     env.notifier,
		Dispatcher:   env.dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	// Crisis evaluation happens on a background goroutine in Send; the
	// tests drive the evaluator directly so assertions stay deterministic.
	env.messageSvc = NewMessageService(MessageServiceDependencies{
		Tickets:     env.tickets,
		Messages:    env.messages,
		TicketSvc:   env.ticketSvc,
		Crisis:      nil,
		Registry:    env.registry,
		Cursors:     env.cursors,
		Locks:       locks,
		Dispatcher:  env.dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		ReplayLimit: 500,
	})
	return env
}

func (e *testEnv) createTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	if input.Category == "" {
		input.Category = "Anxiety"
	}
	if input.InitialMessage == "" {
		input.InitialMessage = "I would like to talk to someone"
	}
	return e.ticketSvc.Create(ctx, testStudent, input)
}

// pairingInvariantHolds checks assignee != nil iff status is one of
// assigned, active, follow_up.
func pairingInvariantHolds(ticket *domain.Ticket) bool {
	hasAssignee := ticket.CounselorID != nil
	switch ticket.Status {
	case domain.TicketStatusAssigned, domain.TicketStatusActive, domain.TicketStatusFollowUp:
		return hasAssignee
	default:
		return !hasAssignee
	}
}

// fakeConn implements live.Conn and records written frames.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) frame(i int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[i]
}

// waitFrames blocks until the connection has seen n frames or the
// timeout elapses; the channel's writer goroutine drains asynchronously.
func (c *fakeConn) waitFrames(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.frameCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.frameCount() >= n
}
