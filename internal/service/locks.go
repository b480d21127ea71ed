package service

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

type ticketLock struct {
	sem  chan struct{}
	refs int
}

// TicketLocks serializes all mutations to a single ticket: assignment,
// status transitions, message appends and session attach/replay. There is
// no global lock; contention is local to one ticket's record.
type TicketLocks struct {
	mu      sync.Mutex
	locks   map[string]*ticketLock
	timeout time.Duration
}

// NewTicketLocks creates a lock table with the given acquisition budget.
func NewTicketLocks(timeout time.Duration) *TicketLocks {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TicketLocks{
		locks:   make(map[string]*ticketLock),
		timeout: timeout,
	}
}

// Acquire takes the ticket's lock, waiting at most the configured budget.
// On success the returned release function must be called exactly once.
// Exceeding the budget or the caller's context returns a retryable
// Timeout error; the operation is never partially applied.
func (l *TicketLocks) Acquire(ctx context.Context, ticketID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[ticketID]
	if !ok {
		entry = &ticketLock{sem: make(chan struct{}, 1)}
		l.locks[ticketID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.release(ticketID, entry)
		}, nil
	case <-ctx.Done():
		l.release(ticketID, entry)
		return nil, apperrors.NewTimeout("ticket lock wait cancelled")
	case <-timer.C:
		l.release(ticketID, entry)
		return nil, apperrors.NewTimeout("ticket lock contention exceeded budget")
	}
}

func (l *TicketLocks) release(ticketID string, entry *ticketLock) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, ticketID)
	}
	l.mu.Unlock()
}
