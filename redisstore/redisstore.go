/*
Package redisstore is a Redis-backed implementation of store.Store, suitable
when cached query results must survive the process or be shared between
processes pointed at the same server.

Entries are stored as a JSON envelope carrying the value and its instants.
When an expiry window is set, it is also applied as the Redis key TTL, so
the server evicts expired entries on its own — the engine's sweep is
unnecessary on this backend, and the store stays opaque to it (no Lister).
*/
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/krisalay/query-cache/store"
	"github.com/krisalay/query-cache/types"
)

const defaultPrefix = "querycache:"

// Config holds connection settings for a self-owned client.
type Config struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string
	DB        int
	KeyPrefix string // namespace for all keys (default "querycache:")
}

// Store implements store.Store[T] on a Redis client.
type Store[T any] struct {
	client *redis.Client
	prefix string
}

// New creates a store with its own Redis client.
func New[T any](cfg Config) *Store[T] {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient[T](client, cfg.KeyPrefix)
}

// NewFromClient creates a store on an existing client. The caller keeps
// ownership of the client's lifecycle unless Close is used.
func NewFromClient[T any](client *redis.Client, prefix string) *Store[T] {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store[T]{client: client, prefix: prefix}
}

var _ store.Store[string] = (*Store[string])(nil)

func (s *Store[T]) key(k string) string {
	return s.prefix + k
}

// envelope is the JSON shape stored under each key.
type envelope[T any] struct {
	Data      T          `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	StaleAt   *time.Time `json:"staleAt,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Write marshals the entry and sets it, using the expiry window as the
// server-side TTL when one is given.
func (s *Store[T]) Write(ctx context.Context, key string, value T, ttl store.TTL) error {
	now := time.Now()
	env := envelope[T]{
		Data:      value,
		Timestamp: now,
	}
	if at := ttl.StaleAt(now); !at.IsZero() {
		env.StaleAt = &at
	}
	if at := ttl.ExpiresAt(now); !at.IsZero() {
		env.ExpiresAt = &at
	}

	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal entry for key %s: %w", key, err)
	}

	var expire time.Duration // 0 => no server-side TTL
	if env.ExpiresAt != nil {
		expire = time.Until(*env.ExpiresAt)
		if expire <= 0 {
			// Already past the window; SET with a non-positive TTL is a
			// Redis error, so write nothing and make sure nothing is left.
			return s.Remove(ctx, key)
		}
	}

	if err := s.client.Set(ctx, s.key(key), b, expire).Err(); err != nil {
		return fmt.Errorf("set key %s: %w", key, err)
	}
	return nil
}

// Read fetches and unmarshals the entry. A missing key (including one the
// server already expired) reads as absent, not as an error.
func (s *Store[T]) Read(ctx context.Context, key string) (*types.Entry[T], bool, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get key %s: %w", key, err)
	}

	var env envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, false, fmt.Errorf("unmarshal entry for key %s: %w", key, err)
	}

	ent := &types.Entry[T]{
		Data:      env.Data,
		Timestamp: env.Timestamp,
	}
	if env.StaleAt != nil {
		ent.StaleAt = *env.StaleAt
	}
	if env.ExpiresAt != nil {
		ent.ExpiresAt = *env.ExpiresAt
	}
	return ent, true, nil
}

// Remove deletes the key. Deleting an absent key is not an error.
func (s *Store[T]) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("del key %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity. Used by tests and the demo to fail fast.
func (s *Store[T]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store[T]) Close() error {
	return s.client.Close()
}
