package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrypster/recall/pkg/types"
)

// RedisStore keeps each user's history in a capped Redis list.
type RedisStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewRedisStore creates a Redis-backed Store. ttl refreshes on every append.
func NewRedisStore(client *redis.Client, maxTurns int, ttl time.Duration) *RedisStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &RedisStore{client: client, maxTurns: maxTurns, ttl: ttl}
}

func convKey(userID string) string {
	return "recall:conv:" + userID
}

// History returns the stored turns, oldest first. Malformed entries are skipped.
func (s *RedisStore) History(ctx context.Context, userID string) ([]types.Turn, error) {
	key := convKey(userID)
	vals, err := s.client.LRange(ctx, key, int64(-s.maxTurns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	turns := make([]types.Turn, 0, len(vals))
	for _, v := range vals {
		var t types.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append pushes turns, trims the list and refreshes its expiry.
func (s *RedisStore) Append(ctx context.Context, userID string, turns ...types.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key := convKey(userID)

	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshaling turn: %w", err)
		}
		values = append(values, string(data))
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Clear deletes the user's history.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, convKey(userID)).Err()
}

var _ Store = (*RedisStore)(nil)
