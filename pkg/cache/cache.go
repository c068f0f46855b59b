package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is wrapped by every implementation when a key is absent.
var ErrCacheMiss = errors.New("key not found in cache")

// Cache is a generic interface for a caching layer.
type Cache[K any, V any] interface {
	// FetchFromCache retrieves an item from the cache.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds an item to the cache, replacing any previous value.
	WriteToCache(ctx context.Context, key K, value V) error
	// Invalidate removes an item. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key K) error
	// Close releases any resources held by the cache.
	Close() error
}

// Entry is an opaque blob with its write time. It is the value type used to
// persist encoded sessions in any backend.
type Entry struct {
	Data      []byte    `json:"data" firestore:"data"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// NewEntry stamps data with the current time.
func NewEntry(data []byte) Entry {
	return Entry{Data: data, UpdatedAt: time.Now().UTC()}
}
