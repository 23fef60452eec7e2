package telephony

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL covers the platform's retry window for a delivery.
const DefaultDedupTTL = 24 * time.Hour

// Deduper remembers webhook delivery ids so retries are applied once.
type Deduper interface {
	// Claim returns false when id was already claimed.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a failed delivery can be retried.
	Release(ctx context.Context, id string) error
}

// RedisDeduper shares claims across replicas.
type RedisDeduper struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDeduper{rdb: rdb, prefix: "webhooks:livekit:", ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", id, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, d.prefix+id).Err()
}

// MemoryDeduper is the single-process fallback when Redis is not configured.
type MemoryDeduper struct {
	c *cache.Cache
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDeduper{c: cache.New(ttl, 10*time.Minute)}
}

func (d *MemoryDeduper) Claim(_ context.Context, id string) (bool, error) {
	// Add fails when the key is present and unexpired.
	return d.c.Add(id, struct{}{}, cache.DefaultExpiration) == nil, nil
}

func (d *MemoryDeduper) Release(_ context.Context, id string) error {
	d.c.Delete(id)
	return nil
}
