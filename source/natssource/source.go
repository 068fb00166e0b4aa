// Package natssource produces cache values from a NATS JetStream key-value bucket.
package natssource

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	logger "github.com/harwoeck/liblog/contract"
	"github.com/nats-io/nats.go"

	"github.com/goforj/atmcache"
)

// KeyValue captures the subset of nats.KeyValue used by the source.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Purge(key string, opts ...nats.DeleteOpt) error
}

// Source reads values from a bucket. Keys are encoded so arbitrary cache keys
// map onto valid NATS subjects.
type Source struct {
	kv     KeyValue
	prefix string
	log    logger.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithPrefix namespaces keys inside the bucket.
func WithPrefix(prefix string) Option {
	return func(s *Source) { s.prefix = prefix }
}

// WithLogger attaches a structured logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Source) { s.log = log.Named("natssource") }
}

// New wraps kv.
func New(kv KeyValue, opts ...Option) *Source {
	s := &Source{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectConfig describes a bucket on a NATS server.
type ConnectConfig struct {
	URL    string
	Bucket string
	// Create makes the bucket when it does not exist yet.
	Create bool
	// TTL applies to a bucket created by Connect.
	TTL time.Duration
}

// Connect dials cfg.URL and binds the JetStream key-value bucket.
func Connect(cfg ConnectConfig, opts ...Option) (*Source, *nats.Conn, error) {
	if cfg.Bucket == "" {
		return nil, nil, errors.New("nats source requires a bucket")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) && cfg.Create {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: cfg.Bucket, TTL: cfg.TTL})
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("bind bucket %q: %w", cfg.Bucket, err)
	}
	return New(kv, opts...), nc, nil
}

// Producer returns a producer reading key. Missing or deleted keys yield ErrNoValue.
func (s *Source) Producer(key string) atmcache.Producer {
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := s.get(key)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, atmcache.ErrNoValue
		}
		return value, nil
	}
}

// Publish writes value to key in the bucket and drops key from c so the next
// Fetch reads the new revision.
func (s *Source) Publish(c *atmcache.Cache, key string, value []byte) error {
	if s.kv == nil {
		return errors.New("nats key-value unavailable")
	}
	if _, err := s.kv.Put(s.subject(key), value); err != nil {
		return err
	}
	if c != nil {
		c.Delete(key)
	}
	return nil
}

// Invalidate purges keys from the bucket and from c.
func (s *Source) Invalidate(c *atmcache.Cache, keys ...string) error {
	if c != nil {
		c.DeleteMany(keys...)
	}
	if s.kv == nil {
		return errors.New("nats key-value unavailable")
	}
	for _, key := range keys {
		if err := s.kv.Purge(s.subject(key)); err != nil && !isMiss(err) {
			return err
		}
	}
	return nil
}

func (s *Source) get(key string) ([]byte, error) {
	if s.kv == nil {
		return nil, errors.New("nats key-value unavailable")
	}
	entry, err := s.kv.Get(s.subject(key))
	if isMiss(err) {
		return nil, nil
	}
	if err != nil {
		if s.log != nil {
			s.log.Warn("bucket read failed", logger.NewField("key", key), logger.NewField("error", err))
		}
		return nil, fmt.Errorf("nats get %q: %w", key, err)
	}
	if op := entry.Operation(); op == nats.KeyValueDelete || op == nats.KeyValuePurge {
		return nil, nil
	}
	value := entry.Value()
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Source) subject(key string) string {
	if s.prefix == "" {
		return encodeKeyPart(key)
	}
	return encodeKeyPart(s.prefix) + "." + encodeKeyPart(key)
}

func isMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

func encodeKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
