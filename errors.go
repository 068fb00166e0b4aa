package atmcache

import "errors"

var (
	// ErrInvalidKey is returned when a call passes an empty key.
	ErrInvalidKey = errors.New("atmcache: key must not be empty")
	// ErrNilProducer is returned when Fetch is called without a producer.
	ErrNilProducer = errors.New("atmcache: fetch requires a producer")
	// ErrProducerPanic wraps a value recovered from a panicking producer.
	ErrProducerPanic = errors.New("atmcache: producer panicked")
)
