package atmcache

import (
	"context"
	"time"

	"github.com/goforj/atmcache/cachecore"
)

// Op identifies a cache operation reported to observers.
type Op = cachecore.Op

const (
	OpGet     = cachecore.OpGet
	OpSet     = cachecore.OpSet
	OpDelete  = cachecore.OpDelete
	OpFlush   = cachecore.OpFlush
	OpFetch   = cachecore.OpFetch
	OpRefresh = cachecore.OpRefresh
	OpEvict   = cachecore.OpEvict
	OpExpire  = cachecore.OpExpire
)

// Observer receives events for cache operations.
// It is called after each operation completes. Expire events arrive from the
// background sweeper goroutine.
type Observer interface {
	OnCacheOp(ctx context.Context, op Op, key string, status Status, err error, dur time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op Op, key string, status Status, err error, dur time.Duration)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op Op, key string, status Status, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, op, key, status, err, dur)
}
