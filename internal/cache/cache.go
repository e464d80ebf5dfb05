// Package cache implements the TTL-keyed store shared by both data clients.
// Expiry is evaluated lazily on read: an entry older than the store TTL is a
// miss whether or not it has been physically purged.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is the stored value plus its write timestamp.
type Entry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Status reports store contents for diagnostics.
type Status struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

// Store is the cache contract passed by reference to every consumer.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Clear(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
}
