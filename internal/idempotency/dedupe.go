package idempotency

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"

	"github.com/unclebandit/mailleopard-backend/internal/config"
)

// Deduper remembers idempotency keys for a while.
type Deduper interface {
	// Claim records key and reports whether this is its first sighting.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a failed intake can be retried by the provider.
	Release(ctx context.Context, key string) error
}

// MemoryDeduper keeps keys in process. Fine for a single instance.
type MemoryDeduper struct{ c *gocache.Cache }

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{c: gocache.New(ttl, time.Minute)}
}

func (m *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	// Add fails when the key is already present and unexpired.
	if err := m.c.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryDeduper) Release(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// RedisDeduper shares keys across instances.
type RedisDeduper struct {
	c   *rdb.Client
	ttl time.Duration
}

func NewRedisDeduper(client *rdb.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{c: client, ttl: ttl}
}

func (r *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.c.SetNX(ctx, key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *RedisDeduper) Release(ctx context.Context, key string) error {
	return r.c.Del(ctx, key).Err()
}

// FromConfig builds the deduper named by cfg.Dedupe.Driver.
func FromConfig(ctx context.Context, cfg config.Config) (Deduper, error) {
	switch cfg.Dedupe.Driver {
	case "", "memory":
		return NewMemoryDeduper(cfg.Dedupe.TTL), nil
	case "redis":
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Dedupe.RedisAddr, DB: cfg.Dedupe.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Dedupe.RedisAddr, err)
		}
		return NewRedisDeduper(client, cfg.Dedupe.TTL), nil
	default:
		return nil, fmt.Errorf("unknown dedupe driver %q", cfg.Dedupe.Driver)
	}
}

var (
	_ Deduper = (*MemoryDeduper)(nil)
	_ Deduper = (*RedisDeduper)(nil)
)
