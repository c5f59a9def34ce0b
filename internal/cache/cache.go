// Package cache provides the shared Redis-backed TTL store used for
// best-effort throttle markers and map-query caching. Entries here are
// never correctness-critical: losing them causes, at worst, a duplicate
// alert or a cache miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"rainbowwatch/internal/types"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store wraps a Redis client with JSON serialization and a key prefix.
type Store struct {
	client redis.Cmdable
	prefix string
}

// New creates a Store connected to the given Redis address.
func New(addr, password string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "rainbowwatch:",
	}
}

// NewWithClient creates a Store around an existing client. Used by tests to
// inject a miniature or mock client.
func NewWithClient(client redis.Cmdable) *Store {
	return &Store{client: client, prefix: "rainbowwatch:"}
}

// Set stores a JSON-serialized value with a TTL.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalCache, "failed to marshal cache value", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalCache, "failed to set cache key", err)
	}
	return nil
}

// Get loads a JSON-serialized value into dest. Returns ErrMiss when the key
// is absent.
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return types.NewAppError(types.ErrCodeInternalCache, "failed to get cache key", err)
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return types.NewAppError(types.ErrCodeInternalCache, "failed to unmarshal cache value", err)
	}
	return nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalCache, "failed to delete cache key", err)
	}
	return nil
}

// Claim atomically sets a throttle marker with a TTL if it does not already
// exist. It returns true when this caller won the claim. This is SET NX, not
// a lock: two overlapping claims at the exact same instant settle on one
// winner, but a caller that crashes between Claim and dispatch leaves the
// marker in place until the TTL expires.
func (s *Store) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalCache, "failed to claim throttle marker", err)
	}
	return ok, nil
}

// Exists reports whether a throttle marker is currently set.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalCache, "failed to check throttle marker", err)
	}
	return n > 0, nil
}

// Ping verifies connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
