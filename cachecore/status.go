package cachecore

// Status describes the outcome of a cache read or fetch.
type Status string

const (
	// StatusMiss means no entry exists for the key.
	StatusMiss Status = "miss"
	// StatusFresh means the entry has not reached its expiration time.
	StatusFresh Status = "fresh"
	// StatusStale means the entry is past its expiration time but still held.
	StatusStale Status = "stale"
	// StatusLoaded means a producer ran and its value was stored.
	StatusLoaded Status = "loaded"
	// StatusEmpty means a producer ran but yielded nothing usable.
	StatusEmpty Status = "empty"
)

// Op identifies a cache operation reported to observers.
type Op string

const (
	OpGet     Op = "get"
	OpSet     Op = "set"
	OpDelete  Op = "delete"
	OpFlush   Op = "flush"
	OpFetch   Op = "fetch"
	OpRefresh Op = "refresh"
	OpEvict   Op = "evict"
	OpExpire  Op = "expire"
)
