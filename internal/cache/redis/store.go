// Package redis implements the cache store on top of a shared Redis instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds the connection settings for the Redis backend.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store reads and writes cache entries as Redis strings with native expiry.
type Store struct {
	client goredis.Cmdable
	closer func() error
	prefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("ping redis: %w (close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Store{client: client, closer: client.Close, prefix: cfg.Prefix}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client goredis.Cmdable, prefix string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Store{client: client, prefix: prefix}, nil
}

// Get returns the value stored under key, or ok=false when it is absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set stores value under key with the given ttl. A non-positive ttl never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the connection pool when the store owns it.
func (s *Store) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	if err := s.closer(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
