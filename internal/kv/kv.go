// Package kv provides a small key-value abstraction used by the session
// store (§4.13) and the rate limiter's counters. It is backed by Redis
// when configured, or an
// in-memory implementation for single-process deployments.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/speakeasy-rtc/speakeasy/internal/config"
)

// KV is the capability every component in this package depends on.
type KV interface {
	Has(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	// RPush appends a value to a list stored under key. Returns the new length.
	RPush(ctx context.Context, key string, value []byte) (int64, error)
	// LDrain atomically returns all elements of the list and deletes the key.
	LDrain(ctx context.Context, key string) ([][]byte, error)
	Close() error
}

// ErrNotFound is returned by Get for a missing or expired key.
var ErrNotFound = fmt.Errorf("kv: key not found")

// NewInMemory builds a standalone in-memory KV, useful for tests and for
// single-process deployments that construct it directly rather than via
// MakeKV/config.
func NewInMemory() KV {
	return makeInMemoryKV()
}

// MakeKV creates a new key-value store client according to cfg.Redis.
func MakeKV(ctx context.Context, cfg *config.Config) (KV, error) {
	if cfg.Redis.Enabled {
		redisKV, err := makeRedisKV(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("kv: creating redis client: %w", err)
		}
		return redisKV, nil
	}
	return makeInMemoryKV(), nil
}
