package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/wealth-widget/internal/domain"
)

const redisKeyPrefix = "widget:session:"

// RedisStore keeps sessions in Redis with a sliding expiry, so it never
// reports expired sessions to the sweeper.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// GetSession implements SessionStore.
func (r *RedisStore) GetSession(ctx context.Context, key string) (*domain.Session, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get widget session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode widget session %s: %w", key, err)
	}
	return &session, nil
}

// SaveSession implements SessionStore. Each save refreshes the expiry.
func (r *RedisStore) SaveSession(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode widget session: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+session.Key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("set widget session: %w", err)
	}
	return nil
}

// DeleteSession implements SessionStore.
func (r *RedisStore) DeleteSession(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete widget session: %w", err)
	}
	return nil
}

// ExpiredSessions implements SessionStore. Redis expires keys on its own.
func (r *RedisStore) ExpiredSessions(context.Context, time.Duration) ([]string, error) {
	return nil, nil
}

// Ping implements SessionStore.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements SessionStore.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
