package atmcache

import (
	"context"
	"time"
)

// ReadAPI exposes side-effect free reads.
type ReadAPI interface {
	Get(key string) Lookup
	Len() int
	Keys() []string
}

// WriteAPI exposes write and invalidation operations.
type WriteAPI interface {
	Set(key string, value []byte, ttl time.Duration) error
	SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(key string)
	DeleteMany(keys ...string)
	Flush()
	Close() error
}

// FetchAPI exposes coalesced read-through helpers.
type FetchAPI interface {
	Fetch(ctx context.Context, key string, fn Producer, opts ...FetchOption) ([]byte, bool, error)
	FetchString(ctx context.Context, key string, fn func(context.Context) (string, error), opts ...FetchOption) (string, bool, error)
}

// CacheAPI is the composed application-facing interface for Cache.
type CacheAPI interface {
	ReadAPI
	WriteAPI
	FetchAPI
}

var _ CacheAPI = (*Cache)(nil)
