package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type RedisTokenStore struct {
	Redis *redis.Client
	key   string
}

func NewRedisTokenStore(redisClient *redis.Client, profile string) *RedisTokenStore {
	return &RedisTokenStore{
		Redis: redisClient,
		key:   fmt.Sprintf("session:%s:access_token", profile),
	}
}

// Load returns "" when no token is stored.
func (s *RedisTokenStore) Load(ctx context.Context) (string, error) {
	token, err := s.Redis.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("token store: load: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, token string, ttl time.Duration) error {
	if err := s.Redis.Set(ctx, s.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("token store: save: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.Redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("token store: clear: %w", err)
	}
	return nil
}
