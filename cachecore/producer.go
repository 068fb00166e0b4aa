package cachecore

import (
	"context"
	"errors"
)

// ErrNoValue is returned by a Producer that completed without usable data.
// It is treated the same as a nil value: delivered as empty, never cached.
var ErrNoValue = errors.New("cache: producer returned no value")

// Producer computes a fresh value for a key, typically by querying a slower
// backing source. A nil value or ErrNoValue means "nothing to cache".
type Producer func(ctx context.Context) ([]byte, error)

// Usable reports whether a producer result may be written to the cache.
func Usable(value []byte, err error) bool {
	return err == nil && value != nil
}
