package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"catatwarung/backend/internal/domain"
)

const keyPrefix = "catatwarung:intent:"

type RedisIntentCache struct {
	client *redis.Client
}

func NewRedisIntentCache(client *redis.Client) *RedisIntentCache {
	return &RedisIntentCache{client: client}
}

func (c *RedisIntentCache) Get(ctx context.Context, key string) (*domain.ParsedIntent, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var intent domain.ParsedIntent
	if err := json.Unmarshal(val, &intent); err != nil {
		return nil, false, err
	}
	return &intent, true, nil
}

func (c *RedisIntentCache) Set(ctx context.Context, key string, value *domain.ParsedIntent, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}
