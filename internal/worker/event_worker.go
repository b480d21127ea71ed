package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/events"
)

const (
	eventFeedKey = "events:recent"
	eventFeedCap = 1000
)

// EventFeedWorker mirrors domain events into a capped redis list so
// operational tooling can tail recent activity without a database query.
// Best-effort: a redis failure is logged and the event is dropped from
// the feed, never from the system of record.
type EventFeedWorker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewEventFeedWorker constructs the worker.
func NewEventFeedWorker(client *redis.Client, logger *zap.Logger) *EventFeedWorker {
	return &EventFeedWorker{client: client, logger: logger}
}

// Register subscribes the worker to every event type it mirrors.
func (w *EventFeedWorker) Register(dispatcher events.Dispatcher) {
	types := []events.EventType{
		events.EventTicketCreated,
		events.EventTicketAssigned,
		events.EventTicketStatusChanged,
		events.EventMessageSent,
		events.EventCrisisRaised,
		events.EventCrisisResolved,
		events.EventAssessmentSubmitted,
	}
	for _, t := range types {
		dispatcher.Subscribe(t, w.handle)
	}
}

func (w *EventFeedWorker) handle(ctx context.Context, event events.Event) error {
	if w.client == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("failed to encode event for feed", zap.Error(err))
		return nil
	}

	feedCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pipe := w.client.Pipeline()
	pipe.LPush(feedCtx, eventFeedKey, data)
	pipe.LTrim(feedCtx, eventFeedKey, 0, eventFeedCap-1)
	if _, err := pipe.Exec(feedCtx); err != nil {
		w.logger.Warn("failed to append event feed",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
	return nil
}
