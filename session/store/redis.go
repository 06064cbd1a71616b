package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/docpanel/docpanel/errors"
	"github.com/docpanel/docpanel/session"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements session storage using Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration for sessions.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "docpanel:session:",
		TTL:    24 * time.Hour,
	}
}

// NewRedisStore creates a new Redis-based session store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// Save persists a session record to Redis.
func (s *RedisStore) Save(ctx context.Context, record *session.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("%w: session record cannot be nil or unidentified", errors.ErrInvalidInput)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := s.client.Set(ctx, s.sessionKey(record.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// Load retrieves a session record from Redis.
func (s *RedisStore) Load(ctx context.Context, id string) (*session.Record, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("session %s: %w", id, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}

	var record session.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// Delete removes a session record from Redis.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

// List returns all stored session ids.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions in redis: %w", err)
	}
	return ids, nil
}

// Exists reports whether a session record is present.
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session in redis: %w", err)
	}
	return n > 0, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) sessionKey(id string) string {
	return s.prefix + id
}
