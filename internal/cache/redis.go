package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanzolab/colorsync/internal/palette"
)

const redisKeyPrefix = "colorsync:cache:"

// Redis is a Store backed by a Redis instance. Entries carry the same
// {data, cachedAt} envelope as the memory store so the lazy-expiry invariant
// holds even when the server-side TTL has not fired yet.
type Redis struct {
	rdb   *redis.Client
	ttl   time.Duration
	clock palette.Clock
}

// NewRedis wraps an externally constructed client (dependency injection,
// mirroring how the memory store is handed to consumers).
func NewRedis(rdb *redis.Client, ttl time.Duration, clock palette.Clock) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, clock: clock}
}

// Put stores the envelope under a namespaced key with a server-side expiry.
func (r *Redis) Put(ctx context.Context, key string, data []byte) error {
	entry := Entry{
		Data:     append(json.RawMessage(nil), data...),
		CachedAt: r.clock.Now(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Get returns the cached data, treating both a missing key and a stale
// envelope timestamp as misses.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	var entry Entry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, false, fmt.Errorf("unmarshal cache entry %q: %w", key, err)
	}
	if r.clock.Now().Sub(entry.CachedAt) >= r.ttl {
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Clear removes every namespaced key.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Status reports the namespaced keys currently present.
func (r *Redis) Status(ctx context.Context) (Status, error) {
	keys, err := r.scanKeys(ctx)
	if err != nil {
		return Status{}, err
	}
	trimmed := make([]string, 0, len(keys))
	for _, k := range keys {
		trimmed = append(trimmed, strings.TrimPrefix(k, redisKeyPrefix))
	}
	sort.Strings(trimmed)
	return Status{Entries: len(trimmed), Keys: trimmed}, nil
}

func (r *Redis) scanKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
