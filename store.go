package atmcache

import (
	"sort"
	"sync"
	"time"

	"github.com/goforj/atmcache/cachecore"
	gocache "github.com/patrickmn/go-cache"
)

// Status describes the outcome of a cache read or fetch.
type Status = cachecore.Status

const (
	StatusMiss   = cachecore.StatusMiss
	StatusFresh  = cachecore.StatusFresh
	StatusStale  = cachecore.StatusStale
	StatusLoaded = cachecore.StatusLoaded
	StatusEmpty  = cachecore.StatusEmpty
)

type entry struct {
	value      []byte
	expiresAt  time.Time
	refreshing bool
	seq        uint64
}

// Lookup is the result of reading a key from the Store.
type Lookup struct {
	Status    Status
	Value     []byte
	ExpiresAt time.Time

	// Refreshing reports whether a refresh was already claimed before this read.
	Refreshing bool

	// OwnsRefresh is set on the one stale read that claimed the refresh.
	OwnsRefresh bool

	seq uint64
}

// Hit reports whether the lookup returned a value, fresh or stale.
func (l Lookup) Hit() bool {
	return l.Status == StatusFresh || l.Status == StatusStale
}

// Store maps keys to TTL entries with a capacity bound. Stale entries are kept
// until replaced, deleted, evicted, or dropped after Config.StaleRetention.
// A Store with a stale retention runs a sweeper goroutine until Close.
type Store struct {
	mu         sync.Mutex
	items      *gocache.Cache
	clock      clock
	capacity   int
	defaultTTL time.Duration
	retention  time.Duration
	codec      CompressionCodec
	maxBytes   int
	seq        uint64

	onRemove func(op Op, key string)

	stop      chan struct{}
	closeOnce sync.Once
}

// NewStore builds a standalone Store from cfg. Most callers want New, which
// adds coalesced fetching on top.
func NewStore(cfg Config) *Store {
	return newStore(cfg.withDefaults(), nil)
}

func newStore(cfg Config, onRemove func(op Op, key string)) *Store {
	s := &Store{
		items:      gocache.New(gocache.NoExpiration, 0),
		clock:      cfg.clock,
		capacity:   cfg.MaxEntries,
		defaultTTL: cfg.DefaultTTL,
		retention:  cfg.StaleRetention,
		codec:      cfg.Compression,
		maxBytes:   cfg.MaxValueBytes,
		onRemove:   onRemove,
		stop:       make(chan struct{}),
	}
	if s.retention > 0 && cfg.CleanupInterval > 0 {
		go s.sweep(cfg.CleanupInterval)
	}
	return s
}

// Close stops the sweeper. Entries stay readable. Close is idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.DeleteExpired()
		case <-s.stop:
			return
		}
	}
}

// DeleteExpired removes entries that are past their stale retention and
// reports each one as expired.
func (s *Store) DeleteExpired() {
	if s.retention <= 0 {
		return
	}
	s.mu.Lock()
	now := s.clock.Now()
	var swept []string
	for key, item := range s.items.Items() {
		if e, ok := item.Object.(*entry); ok && s.retired(e, now) {
			s.items.Delete(key)
			swept = append(swept, key)
		}
	}
	s.mu.Unlock()

	sort.Strings(swept)
	for _, key := range swept {
		s.notify(OpExpire, key)
	}
}

// Lookup reads key. On the first stale read after a write it atomically claims
// the refresh for the caller (OwnsRefresh); later stale reads see Refreshing.
func (s *Store) Lookup(key string) Lookup {
	return s.read(key, true)
}

// Peek reads key without claiming a refresh.
func (s *Store) Peek(key string) Lookup {
	return s.read(key, false)
}

func (s *Store) read(key string, claim bool) Lookup {
	s.mu.Lock()
	out, retired := s.readLocked(key, claim)
	s.mu.Unlock()

	if retired {
		s.notify(OpExpire, key)
	}
	return out
}

func (s *Store) readLocked(key string, claim bool) (Lookup, bool) {
	e, ok := s.entry(key)
	if !ok {
		return Lookup{Status: StatusMiss}, false
	}
	now := s.clock.Now()
	if s.retired(e, now) {
		s.items.Delete(key)
		return Lookup{Status: StatusMiss}, true
	}
	value, err := decodeValue(s.codec, e.value)
	if err != nil {
		s.items.Delete(key)
		return Lookup{Status: StatusMiss}, false
	}
	out := Lookup{
		Status:     StatusFresh,
		Value:      value,
		ExpiresAt:  e.expiresAt,
		Refreshing: e.refreshing,
		seq:        e.seq,
	}
	if now.Before(e.expiresAt) {
		return out, false
	}
	out.Status = StatusStale
	if claim && !e.refreshing {
		e.refreshing = true
		out.OwnsRefresh = true
	}
	return out, false
}

// ReleaseRefresh clears a claimed refresh without touching value or expiration,
// so the next stale read may claim it again.
func (s *Store) ReleaseRefresh(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entry(key); ok {
		e.refreshing = false
	}
}

// releaseClaim clears the refresh claim taken on the entry written as seq.
// A newer entry keeps whatever claim it has.
func (s *Store) releaseClaim(key string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entry(key); ok && e.seq == seq {
		e.refreshing = false
	}
}

// Set replaces key wholesale. value is copied, so later changes to the
// caller's slice are not observed by readers. When the store grows past
// capacity the entry expiring first is evicted.
func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if value == nil {
		value = []byte{}
	}
	encoded, err := encodeValue(s.codec, s.maxBytes, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seq++
	e := &entry{
		value:     encoded,
		expiresAt: s.clock.Now().Add(ttl),
		seq:       s.seq,
	}
	s.items.Set(key, e, gocache.NoExpiration)
	victim, evicted := s.enforceCapacity()
	s.mu.Unlock()

	if evicted {
		s.notify(OpEvict, victim)
	}
	return nil
}

// Delete removes key. Unknown keys are ignored.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Delete(key)
}

// Flush removes every entry.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Flush()
}

// Len returns the number of live entries, fresh or stale.
func (s *Store) Len() int {
	return len(s.live())
}

// Keys returns live keys in sorted order.
func (s *Store) Keys() []string {
	keys := s.live()
	sort.Strings(keys)
	return keys
}

func (s *Store) live() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	items := s.items.Items()
	keys := make([]string, 0, len(items))
	for key, item := range items {
		if e, ok := item.Object.(*entry); ok && !s.retired(e, now) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *Store) entry(key string) (*entry, bool) {
	item, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	e, ok := item.(*entry)
	return e, ok
}

// enforceCapacity must be called with s.mu held.
func (s *Store) enforceCapacity() (string, bool) {
	if s.items.ItemCount() <= s.capacity {
		return "", false
	}
	items := s.items.Items()
	if len(items) <= s.capacity {
		return "", false
	}
	victim, ok := earliestExpiring(items)
	if !ok {
		return "", false
	}
	s.items.Delete(victim)
	return victim, true
}

// retired reports whether e is past expiresAt+retention on the store clock.
func (s *Store) retired(e *entry, now time.Time) bool {
	return s.retention > 0 && !now.Before(e.expiresAt.Add(s.retention))
}

func (s *Store) notify(op Op, key string) {
	if s.onRemove != nil {
		s.onRemove(op, key)
	}
}
