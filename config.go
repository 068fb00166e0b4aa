package atmcache

import (
	"time"

	logger "github.com/harwoeck/liblog/contract"
)

const (
	defaultTTL             = 60 * time.Second
	defaultMaxEntries      = 600
	defaultCleanupInterval = 10 * time.Minute
)

// Config controls how a Cache is constructed.
type Config struct {
	// DefaultTTL is used when a call provides ttl <= 0.
	DefaultTTL time.Duration

	// MaxEntries bounds the number of live entries. When a Set pushes the
	// count past it, the entry with the earliest expiration is evicted.
	MaxEntries int

	// StaleRetention is how long an expired entry may still be served stale,
	// measured on the cache clock. Zero keeps stale entries until they are
	// replaced, deleted or evicted.
	StaleRetention time.Duration

	// CleanupInterval controls how often entries past their stale retention
	// are swept from memory. The sweeper only runs with a non-zero
	// StaleRetention and stops on Cache.Close.
	CleanupInterval time.Duration

	// ProducerTimeout bounds every producer run. Zero waits indefinitely.
	ProducerTimeout time.Duration

	// Compression shapes values before they are retained.
	Compression CompressionCodec

	// MaxValueBytes rejects values larger than this many bytes. Zero disables the check.
	MaxValueBytes int

	// OnProducerError receives producer failures. Fetch itself never returns them.
	OnProducerError func(key string, err error)

	// Logger receives structured diagnostics. Nil disables logging.
	Logger logger.Logger

	// Observer receives an event for each cache operation.
	Observer Observer

	clock clock
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
	if c.StaleRetention < 0 {
		c.StaleRetention = 0
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.ProducerTimeout < 0 {
		c.ProducerTimeout = 0
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	return c
}
