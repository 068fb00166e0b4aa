package atmcache

import (
	"context"
	"time"

	logger "github.com/harwoeck/liblog/contract"
	"golang.org/x/sync/singleflight"
)

// Cache is a read-through TTL cache. It serves fresh values directly, serves
// stale values while one background refresh runs, and coalesces concurrent
// misses on the same key into a single producer call.
type Cache struct {
	store    *Store
	flights  singleflight.Group
	cfg      Config
	observer Observer
	log      logger.Logger
}

// New creates a cache with optional overrides.
// @group Cache
//
// Example: cache with capacity and default TTL
//
//	c := atmcache.New(
//		atmcache.WithDefaultTTL(time.Minute),
//		atmcache.WithMaxEntries(1000),
//	)
//	fmt.Println(c.Len()) // 0
func New(opts ...Option) *Cache {
	cfg := Config{}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a cache from an explicit configuration.
// @group Cache
func NewWithConfig(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{
		cfg:      cfg,
		observer: cfg.Observer,
	}
	if cfg.Logger != nil {
		c.log = cfg.Logger.Named("atmcache")
	}
	c.store = newStore(cfg, c.removed)
	return c
}

// WithObserver attaches an observer to receive operation events.
func (c *Cache) WithObserver(o Observer) *Cache {
	c.observer = o
	return c
}

// Close stops background sweeping. The cache stays usable for reads and
// writes; entries past their stale retention are then dropped on read.
// @group Cache
func (c *Cache) Close() error {
	return c.store.Close()
}

// Store returns the underlying store.
// @group Cache
func (c *Cache) Store() *Store {
	return c.store
}

// DefaultTTL reports the TTL applied when callers pass ttl <= 0.
func (c *Cache) DefaultTTL() time.Duration {
	return c.cfg.DefaultTTL
}

// Get reads key without side effects: it never launches or claims a refresh.
// @group Cache
//
// Example: inspect a key
//
//	c := atmcache.New()
//	_ = c.Set("user:42", []byte("Ada"), time.Minute)
//	l := c.Get("user:42")
//	fmt.Println(l.Status, string(l.Value)) // fresh Ada
func (c *Cache) Get(key string) Lookup {
	start := time.Now()
	l := c.store.Peek(key)
	c.observe(context.Background(), OpGet, key, l.Status, nil, start)
	return l
}

// Set writes value to key. ttl <= 0 uses the default TTL. A nil error is the
// acknowledgement that the write landed.
// @group Cache
//
// Example: set bytes with ttl
//
//	c := atmcache.New()
//	fmt.Println(c.Set("token", []byte("abc"), time.Minute) == nil) // true
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	return c.SetCtx(context.Background(), key, value, ttl)
}

// SetCtx is the context-aware variant of Set. The context only reaches observers.
func (c *Cache) SetCtx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.store.Set(key, value, c.resolveTTL(ttl))
	status := StatusLoaded
	if err != nil {
		status = StatusEmpty
	}
	c.observe(ctx, OpSet, key, status, err, start)
	return err
}

// Delete removes a single key.
// @group Cache
func (c *Cache) Delete(key string) {
	start := time.Now()
	c.store.Delete(key)
	c.observe(context.Background(), OpDelete, key, StatusMiss, nil, start)
}

// DeleteMany removes multiple keys.
// @group Cache
func (c *Cache) DeleteMany(keys ...string) {
	for _, key := range keys {
		c.Delete(key)
	}
}

// Flush clears all keys.
// @group Cache
func (c *Cache) Flush() {
	start := time.Now()
	c.store.Flush()
	c.observe(context.Background(), OpFlush, "", StatusMiss, nil, start)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Keys returns live keys in sorted order.
func (c *Cache) Keys() []string {
	return c.store.Keys()
}

func (c *Cache) resolveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return c.cfg.DefaultTTL
}

func (c *Cache) removed(op Op, key string) {
	c.logRemoval(op, key)
	c.observe(context.Background(), op, key, StatusMiss, nil, time.Now())
}

func (c *Cache) observe(ctx context.Context, op Op, key string, status Status, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, status, err, time.Since(start))
}
