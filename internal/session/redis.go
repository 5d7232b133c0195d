// Package session stores refresh tokens in Redis. One active token per
// user, bounded by TTL; overwriting invalidates the previous token.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"nexerp.io/internal/auth"
)

const (
	// Primary record: refresh:<user_id> -> token.
	userKeyPrefix = "refresh:"
	// Reverse index so a presented token can be resolved to its owner:
	// refresh_index:<token> -> user_id. Written atomically with the
	// primary record and kept on the same TTL.
	tokenKeyPrefix = "refresh_index:"
)

var _ auth.SessionStore = (*RedisStore)(nil)

// Config holds Redis connection settings.
type Config struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// RedisStore implements auth.SessionStore on a Redis instance.
type RedisStore struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a bounded ping.
func New(cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Save stores the token for the user, superseding any previous token.
// The previous token's reverse index entry is dropped in the same
// pipeline so it can no longer resolve to an owner.
func (s *RedisStore) Save(ctx context.Context, userID, token string, ttl time.Duration) error {
	if userID == "" || token == "" {
		return errors.New("session: user id and token are required")
	}
	if ttl <= 0 {
		return errors.New("session: ttl must be positive")
	}

	prev, err := s.client.Get(ctx, userKeyPrefix+userID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("session: read current token: %w", err)
	}

	pipe := s.client.TxPipeline()
	if prev != "" && prev != token {
		pipe.Del(ctx, tokenKeyPrefix+prev)
	}
	pipe.Set(ctx, userKeyPrefix+userID, token, ttl)
	pipe.Set(ctx, tokenKeyPrefix+token, userID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: save refresh token: %w", err)
	}
	return nil
}

// Owner resolves a presented token to its owning user. The primary record
// is cross-checked so a stale index entry never authenticates.
func (s *RedisStore) Owner(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", auth.ErrNotFound
	}
	userID, err := s.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: lookup token: %w", err)
	}

	current, err := s.client.Get(ctx, userKeyPrefix+userID).Result()
	if err == redis.Nil || (err == nil && current != token) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session: verify token: %w", err)
	}
	return userID, nil
}

// Revoke drops the user's session. Missing keys are not an error.
func (s *RedisStore) Revoke(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	token, err := s.client.Get(ctx, userKeyPrefix+userID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("session: read current token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, userKeyPrefix+userID)
	if token != "" {
		pipe.Del(ctx, tokenKeyPrefix+token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// Ping reports store health for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
