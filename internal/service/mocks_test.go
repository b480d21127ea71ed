package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campuscare/counseling-service/internal/domain"
	"github.com/campuscare/counseling-service/internal/events"
	"github.com/campuscare/counseling-service/internal/repository"
)

type mockTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newMockTicketRepo() *mockTicketRepo {
	return &mockTicketRepo{tickets: make(map[string]*domain.Ticket)}
}

func (r *mockTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *mockTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *mockTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *mockTicketRepo) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.TicketNumber == number {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mockTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.StudentID != nil && ticket.StudentID != *filter.StudentID {
			continue
		}
		if filter.CounselorID != nil {
			if ticket.CounselorID == nil || *ticket.CounselorID != *filter.CounselorID {
				continue
			}
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		out = append(out, *ticket)
	}
	return out, nil
}

func (r *mockTicketRepo) ListAvailable(ctx context.Context, limit, offset int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.CounselorID == nil && ticket.Status == domain.TicketStatusNew {
			out = append(out, *ticket)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *mockTicketRepo) ClaimAssignee(ctx context.Context, ticketID, counselorID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.CounselorID != nil || ticket.Status != domain.TicketStatusNew {
		return false, nil
	}
	now := time.Now()
	ticket.CounselorID = &counselorID
	ticket.Status = domain.TicketStatusAssigned
	ticket.AssignedAt = &now
	ticket.UpdatedAt = now
	return true, nil
}

func (r *mockTicketRepo) LatestOpenByStudent(ctx context.Context, studentID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.StudentID != studentID || ticket.Status == domain.TicketStatusResolved || ticket.Status == domain.TicketStatusClosed {
			continue
		}
		if latest == nil || ticket.CreatedAt.After(latest.CreatedAt) {
			latest = ticket
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	clone := *latest
	return &clone, nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type mockMessageRepo struct {
	mu       sync.Mutex
	messages map[string][]domain.Message // ticketID -> ordered thread
}

func newMockMessageRepo() *mockMessageRepo {
	return &mockMessageRepo{messages: make(map[string][]domain.Message)}
}

func (r *mockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.ID = uuid.NewString()
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], *msg)
	return nil
}

func (r *mockMessageRepo) ListByTicket(ctx context.Context, ticketID string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	thread := r.messages[ticketID]
	out := make([]domain.Message, len(thread))
	copy(out, thread)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockMessageRepo) ListByTicketSince(ctx context.Context, ticketID string, since time.Time, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, msg := range r.messages[ticketID] {
		if msg.CreatedAt.After(since) {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *mockMessageRepo) LastCreatedAt(ctx context.Context, ticketID string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	thread := r.messages[ticketID]
	if len(thread) == 0 {
		return time.Time{}, false, nil
	}
	return thread[len(thread)-1].CreatedAt, true, nil
}

func (r *mockMessageRepo) MarkDelivered(ctx context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ticketID, thread := range r.messages {
		for i := range thread {
			if thread[i].ID == messageID {
				r.messages[ticketID][i].DeliveryState = domain.DeliveryDelivered
				return nil
			}
		}
	}
	return pgx.ErrNoRows
}

type mockCrisisRepo struct {
	mu     sync.Mutex
	events map[string]*domain.CrisisEvent
}

func newMockCrisisRepo() *mockCrisisRepo {
	return &mockCrisisRepo{events: make(map[string]*domain.CrisisEvent)}
}

func (r *mockCrisisRepo) Create(ctx context.Context, event *domain.CrisisEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now()
	clone := *event
	r.events[event.ID] = &clone
	return nil
}

func (r *mockCrisisRepo) GetByID(ctx context.Context, id string) (*domain.CrisisEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *event
	return &clone, nil
}

func (r *mockCrisisRepo) GetUnresolvedByTicket(ctx context.Context, ticketID string) (*domain.CrisisEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.TicketID == ticketID && event.ResolvedAt == nil {
			clone := *event
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mockCrisisRepo) UpdateLevel(ctx context.Context, id string, level domain.CrisisLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok || event.ResolvedAt != nil {
		return pgx.ErrNoRows
	}
	event.Level = level
	return nil
}

func (r *mockCrisisRepo) Acknowledge(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if event.AcknowledgedAt == nil {
		event.AcknowledgedAt = &at
	}
	return nil
}

func (r *mockCrisisRepo) Resolve(ctx context.Context, id, resolvedBy, notes string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok || event.ResolvedAt != nil {
		return pgx.ErrNoRows
	}
	event.ResolvedAt = &at
	event.ResolvedBy = &resolvedBy
	event.ResolutionNotes = notes
	return nil
}

func (r *mockCrisisRepo) MarkNotified(ctx context.Context, id string, channel domain.NotifyChannel) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	event, ok := r.events[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	switch channel {
	case domain.NotifyContacts:
		if event.NotifiedContacts {
			return false, nil
		}
		event.NotifiedContacts = true
	case domain.NotifyAdmin:
		if event.NotifiedAdmin {
			return false, nil
		}
		event.NotifiedAdmin = true
	case domain.NotifySecurity:
		if event.NotifiedSecurity {
			return false, nil
		}
		event.NotifiedSecurity = true
	}
	return true, nil
}

func (r *mockCrisisRepo) ListRecent(ctx context.Context, limit int) ([]domain.CrisisEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CrisisEvent
	for _, event := range r.events {
		out = append(out, *event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{}
}

func (r *mockHistoryRepo) Create(ctx context.Context, entry *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *mockHistoryRepo) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *mockHistoryRepo) byType(changeType domain.TicketChangeType) []domain.TicketHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.ChangeType == changeType {
			out = append(out, entry)
		}
	}
	return out
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepo(users ...*domain.User) *mockUserRepo {
	repo := &mockUserRepo{users: make(map[string]*domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *mockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

type mockAssessmentRepo struct {
	mu          sync.Mutex
	assessments []domain.Assessment
}

func newMockAssessmentRepo() *mockAssessmentRepo {
	return &mockAssessmentRepo{}
}

func (r *mockAssessmentRepo) Create(ctx context.Context, assessment *domain.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assessment.ID = uuid.NewString()
	assessment.CreatedAt = time.Now()
	r.assessments = append(r.assessments, *assessment)
	return nil
}

func (r *mockAssessmentRepo) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.Assessment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Assessment
	for _, assessment := range r.assessments {
		if assessment.StudentID == studentID {
			out = append(out, assessment)
		}
	}
	return out, nil
}

type recordedNotification struct {
	Channel domain.NotifyChannel
	Payload NotificationPayload
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
	err  error
}

func (n *mockNotifier) Notify(ctx context.Context, channel domain.NotifyChannel, payload NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recordedNotification{Channel: channel, Payload: payload})
	return n.err
}

func (n *mockNotifier) byChannel(channel domain.NotifyChannel) []recordedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedNotification
	for _, rec := range n.sent {
		if rec.Channel == channel {
			out = append(out, rec)
		}
	}
	return out
}

type capturingDispatcher struct {
	mu        sync.Mutex
	published []events.Event
}

func (d *capturingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, event)
	return nil
}

func (d *capturingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *capturingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, event := range d.published {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type memCursorStore struct {
	mu      sync.Mutex
	cursors map[string]time.Time
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]time.Time)}
}

func (s *memCursorStore) Set(ctx context.Context, ticketID, partyID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[ticketID+"/"+partyID] = ts
	return nil
}

func (s *memCursorStore) Get(ctx context.Context, ticketID, partyID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.cursors[ticketID+"/"+partyID]
	return ts, ok, nil
}
