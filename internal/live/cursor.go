package live

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CursorStore remembers the newest message timestamp delivered to a party
// on a ticket. Best-effort: it only serves as a replay fallback when a
// reconnecting client does not supply its own last-seen cursor.
type CursorStore interface {
	Set(ctx context.Context, ticketID, partyID string, ts time.Time) error
	Get(ctx context.Context, ticketID, partyID string) (time.Time, bool, error)
}

const cursorTTL = 30 * 24 * time.Hour

type redisCursorStore struct {
	client *redis.Client
}

// NewRedisCursorStore builds a redis-backed cursor store.
func NewRedisCursorStore(client *redis.Client) CursorStore {
	return &redisCursorStore{client: client}
}

func cursorKey(ticketID, partyID string) string {
	return fmt.Sprintf("live:cursor:%s:%s", ticketID, partyID)
}

func (s *redisCursorStore) Set(ctx context.Context, ticketID, partyID string, ts time.Time) error {
	return s.client.Set(ctx, cursorKey(ticketID, partyID), ts.UTC().Format(time.RFC3339Nano), cursorTTL).Err()
}

func (s *redisCursorStore) Get(ctx context.Context, ticketID, partyID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, cursorKey(ticketID, partyID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

type noopCursorStore struct{}

// NewNoopCursorStore returns a cursor store that remembers nothing, used
// when redis is not configured.
func NewNoopCursorStore() CursorStore {
	return noopCursorStore{}
}

func (noopCursorStore) Set(ctx context.Context, ticketID, partyID string, ts time.Time) error {
	return nil
}

func (noopCursorStore) Get(ctx context.Context, ticketID, partyID string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}
