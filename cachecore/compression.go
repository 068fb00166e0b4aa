package cachecore

// CompressionCodec represents a value compression algorithm applied before
// values are retained in memory.
type CompressionCodec string

const (
	CompressionNone CompressionCodec = "none"
	CompressionGzip CompressionCodec = "gzip"
)
