package atmcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goforj/atmcache/cachecore"
)

// Producer computes a fresh value for a key.
type Producer = cachecore.Producer

// ErrNoValue may be returned by a Producer that found nothing to cache.
var ErrNoValue = cachecore.ErrNoValue

// Fetch returns the value for key, invoking fn only when needed:
//
//   - fresh entry: returned directly, fn is not called.
//   - stale entry: the stale value is returned immediately; the first caller
//     to observe staleness starts fn in the background and stores its result.
//   - miss: the caller waits for the single in-flight fn call for key,
//     starting it when none is running. Every waiter gets the same result.
//
// A producer that fails or yields no value never overwrites cached data. Such
// failures are reported to Config.OnProducerError and observers; Fetch returns
// ok=false with a nil error. A non-nil error means the call itself was invalid
// or ctx ended while waiting.
// @group Fetch
//
// Example: coalesced read-through
//
//	c := atmcache.New()
//	body, ok, err := c.Fetch(ctx, "dashboard", func(ctx context.Context) ([]byte, error) {
//		return []byte("payload"), nil
//	}, atmcache.WithTTL(time.Minute))
//	fmt.Println(err == nil, ok, string(body)) // true true payload
func (c *Cache) Fetch(ctx context.Context, key string, fn Producer, opts ...FetchOption) ([]byte, bool, error) {
	start := time.Now()
	if key == "" {
		c.observe(ctx, OpFetch, key, StatusEmpty, ErrInvalidKey, start)
		return nil, false, ErrInvalidKey
	}
	if fn == nil {
		c.observe(ctx, OpFetch, key, StatusEmpty, ErrNilProducer, start)
		return nil, false, ErrNilProducer
	}
	o := c.fetchOptions(opts)

	l := c.store.Lookup(key)
	switch l.Status {
	case StatusFresh:
		c.observe(ctx, OpFetch, key, StatusFresh, nil, start)
		return l.Value, true, nil
	case StatusStale:
		if l.OwnsRefresh {
			c.refresh(ctx, key, l.seq, fn, o)
		}
		c.observe(ctx, OpFetch, key, StatusStale, nil, start)
		return l.Value, true, nil
	}

	if err := ctx.Err(); err != nil {
		c.observe(ctx, OpFetch, key, StatusEmpty, err, start)
		return nil, false, err
	}
	ch := c.flights.DoChan(key, c.flight(ctx, key, fn, o))
	select {
	case <-ctx.Done():
		err := ctx.Err()
		c.observe(ctx, OpFetch, key, StatusEmpty, err, start)
		return nil, false, err
	case res := <-ch:
		value, _ := res.Val.([]byte)
		if value == nil {
			c.observe(ctx, OpFetch, key, StatusEmpty, res.Err, start)
			return nil, false, nil
		}
		c.observe(ctx, OpFetch, key, StatusLoaded, nil, start)
		return cloneBytes(value), true, nil
	}
}

// refresh runs fn for a stale key on behalf of the caller that claimed it.
// The claim on the entry written as seq is released once the flight settles so
// a failed refresh can be retried by the next stale read.
func (c *Cache) refresh(ctx context.Context, key string, seq uint64, fn Producer, o fetchOptions) {
	ctx = context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, c.flight(ctx, key, fn, o))
	go func() {
		start := time.Now()
		res := <-ch
		c.store.releaseClaim(key, seq)
		status := StatusEmpty
		if value, _ := res.Val.([]byte); value != nil {
			status = StatusLoaded
		}
		c.observe(ctx, OpRefresh, key, status, res.Err, start)
	}()
}

// flight is the body of the single producer run for key. It is detached from
// the starting caller's cancellation because other waiters may share it.
func (c *Cache) flight(ctx context.Context, key string, fn Producer, o fetchOptions) func() (interface{}, error) {
	ctx = context.WithoutCancel(ctx)
	return func() (interface{}, error) {
		// A flight that finished between the caller's miss and this one starting
		// has already stored a value.
		if l := c.store.Peek(key); l.Status == StatusFresh {
			return l.Value, nil
		}
		value, err := c.produce(ctx, key, fn, o.timeout)
		if !cachecore.Usable(value, err) {
			if err == nil {
				err = ErrNoValue
			}
			if !errors.Is(err, ErrNoValue) {
				c.producerFailed(key, err)
			}
			return nil, err
		}
		if err := c.SetCtx(ctx, key, value, o.ttl); err != nil {
			c.producerFailed(key, fmt.Errorf("store produced value: %w", err))
		}
		return value, nil
	}
}

// produce invokes fn, converting panics and timeouts into errors. A producer
// that outlives its timeout keeps running but its result is discarded.
func (c *Cache) produce(ctx context.Context, key string, fn Producer, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %v", ErrProducerPanic, r)}
			}
		}()
		value, err := fn(ctx)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("producer for %q abandoned: %w", key, ctx.Err())
	}
}

func (c *Cache) producerFailed(key string, err error) {
	c.logProducerFailure(key, err)
	if c.cfg.OnProducerError != nil {
		c.cfg.OnProducerError(key, err)
	}
}

func (c *Cache) fetchOptions(opts []FetchOption) fetchOptions {
	o := fetchOptions{timeout: c.cfg.ProducerTimeout}
	for _, opt := range opts {
		if opt != nil {
			o = opt(o)
		}
	}
	o.ttl = c.resolveTTL(o.ttl)
	if o.timeout < 0 {
		o.timeout = 0
	}
	return o
}
