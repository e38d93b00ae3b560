package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisSlotStore keeps slots in Redis so a storefront replica set shares
// one durable cache.
type RedisSlotStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSlotStore builds a Redis-backed slot store.
func NewRedisSlotStore(addr, password, prefix string) *RedisSlotStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bookmart:storefront"
	}
	return &RedisSlotStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

// Get returns the slot payload, or (nil, false, nil) when absent.
func (s *RedisSlotStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return data, true, nil
}

// Set replaces the slot payload.
func (s *RedisSlotStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	return nil
}

// Delete removes the slot.
func (s *RedisSlotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("delete slot %s: %w", key, err)
	}
	return nil
}

func (s *RedisSlotStore) redisKey(key string) string {
	return s.prefix + ":" + key
}
