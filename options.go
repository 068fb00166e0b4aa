package atmcache

import (
	"time"

	logger "github.com/harwoeck/liblog/contract"
)

// Option mutates Config when constructing a cache.
type Option func(Config) Config

// WithDefaultTTL overrides the fallback TTL used when ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg Config) Config {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMaxEntries overrides the entry capacity.
func WithMaxEntries(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxEntries = n
		return cfg
	}
}

// WithStaleRetention limits how long expired entries may be served stale.
func WithStaleRetention(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.StaleRetention = d
		return cfg
	}
}

// WithCleanupInterval overrides the sweep interval for entries past stale retention.
func WithCleanupInterval(interval time.Duration) Option {
	return func(cfg Config) Config {
		cfg.CleanupInterval = interval
		return cfg
	}
}

// WithProducerTimeout bounds producer runs. Waiters receive an empty result on timeout.
func WithProducerTimeout(d time.Duration) Option {
	return func(cfg Config) Config {
		cfg.ProducerTimeout = d
		return cfg
	}
}

// WithCompression compresses retained values with codec.
func WithCompression(codec CompressionCodec) Option {
	return func(cfg Config) Config {
		cfg.Compression = codec
		return cfg
	}
}

// WithMaxValueBytes rejects values larger than n bytes.
func WithMaxValueBytes(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxValueBytes = n
		return cfg
	}
}

// WithProducerErrorHandler registers a side channel for producer failures.
func WithProducerErrorHandler(fn func(key string, err error)) Option {
	return func(cfg Config) Config {
		cfg.OnProducerError = fn
		return cfg
	}
}

// WithLogger attaches a structured logger.
func WithLogger(log logger.Logger) Option {
	return func(cfg Config) Config {
		cfg.Logger = log
		return cfg
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}

func withClock(c clock) Option {
	return func(cfg Config) Config {
		cfg.clock = c
		return cfg
	}
}

// FetchOption adjusts a single Fetch call.
type FetchOption func(fetchOptions) fetchOptions

type fetchOptions struct {
	ttl     time.Duration
	timeout time.Duration
}

// WithTTL sets the TTL applied when the producer's value is stored.
func WithTTL(ttl time.Duration) FetchOption {
	return func(o fetchOptions) fetchOptions {
		o.ttl = ttl
		return o
	}
}

// WithTimeout bounds this call's producer run, overriding Config.ProducerTimeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(o fetchOptions) fetchOptions {
		o.timeout = d
		return o
	}
}
