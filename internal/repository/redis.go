package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nailbook/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	holdKeyPrefix      = "slot_hold:"
	rateLimitKeyPrefix = "rate_limit:"
)

// releaseScript deletes a hold only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisHoldStore keeps slot holds as expiring keys shared by every API replica.
type RedisHoldStore struct {
	client *redis.Client
}

func NewRedisHoldStore(client *redis.Client) *RedisHoldStore {
	return &RedisHoldStore{client: client}
}

func (r *RedisHoldStore) AcquireHold(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	ok, err := r.client.SetNX(ctx, holdKeyPrefix+key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire hold in redis: %w", err)
	}
	return ok, nil
}

func (r *RedisHoldStore) ReleaseHold(ctx context.Context, key, owner string) error {
	if r.client == nil {
		return errors.New("redis client is nil")
	}
	if err := releaseScript.Run(ctx, r.client, []string{holdKeyPrefix + key}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release hold in redis: %w", err)
	}
	return nil
}

func (r *RedisHoldStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errors.New("redis client is nil")
	}
	fullKey := rateLimitKeyPrefix + key
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
