package atmcache

import (
	"context"
	"encoding/json"
	"time"
)

// ValueCodec defines how typed values are encoded for storage.
type ValueCodec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// JSONCodec encodes values with encoding/json.
func JSONCodec[T any]() ValueCodec[T] {
	return ValueCodec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var out T
			err := json.Unmarshal(b, &out)
			return out, err
		},
	}
}

// FetchValue is the typed variant of Fetch. fn should return ErrNoValue when
// there is nothing to cache; an encoded nil pointer would be cached as "null".
// @group Fetch
func FetchValue[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error), codec ValueCodec[T], opts ...FetchOption) (T, bool, error) {
	var zero T
	if fn == nil {
		return zero, false, ErrNilProducer
	}
	body, ok, err := c.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return codec.Encode(value)
	}, opts...)
	if err != nil || !ok {
		return zero, ok, err
	}
	out, err := codec.Decode(body)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// FetchJSON is FetchValue with JSON encoding.
// @group Fetch
//
// Example: typed fetch
//
//	type Profile struct { Name string `json:"name"` }
//	c := atmcache.New()
//	p, ok, err := atmcache.FetchJSON(ctx, c, "profile:42", func(context.Context) (Profile, error) {
//		return Profile{Name: "Ada"}, nil
//	})
//	fmt.Println(err == nil, ok, p.Name) // true true Ada
func FetchJSON[T any](ctx context.Context, c *Cache, key string, fn func(context.Context) (T, error), opts ...FetchOption) (T, bool, error) {
	return FetchValue(ctx, c, key, fn, JSONCodec[T](), opts...)
}

// FetchString is Fetch for string values.
// @group Fetch
func (c *Cache) FetchString(ctx context.Context, key string, fn func(context.Context) (string, error), opts ...FetchOption) (string, bool, error) {
	if fn == nil {
		return "", false, ErrNilProducer
	}
	body, ok, err := c.Fetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return []byte(value), nil
	}, opts...)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(body), true, nil
}

// GetJSON decodes the entry for key. The returned status tells fresh from stale.
// @group Cache JSON
func GetJSON[T any](c *Cache, key string) (T, Status, error) {
	var zero T
	l := c.Get(key)
	if !l.Hit() {
		return zero, l.Status, nil
	}
	var out T
	if err := json.Unmarshal(l.Value, &out); err != nil {
		return zero, l.Status, err
	}
	return out, l.Status, nil
}

// SetJSON encodes value as JSON and writes it to key.
// @group Cache JSON
func SetJSON[T any](c *Cache, key string, value T, ttl time.Duration) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(key, body, ttl)
}
