// Package cachemanager provides a generic in-memory cache with a
// read-through wrapper. Prism uses it for compiled regex patterns,
// compiled grammars, and theme scope resolutions.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is the interface every cache implementation satisfies.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	GetWithRefresh(ctx context.Context, key string, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}
