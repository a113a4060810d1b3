package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wagateway:pending-selection:"

// RedisStore is a SelectionStore backed by Redis, for deployments that run
// more than one gateway instance. Expiry rides on the Redis key TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed selection store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, channelID string) (*PendingSelection, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+channelID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var pending PendingSelection
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to decode pending selection: %w", err)
	}
	return &pending, nil
}

func (s *RedisStore) Put(ctx context.Context, channelID string, pending *PendingSelection, ttl time.Duration) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending selection: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+channelID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, channelID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+channelID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
