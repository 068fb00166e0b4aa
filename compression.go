package atmcache

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"

	"github.com/goforj/atmcache/cachecore"
)

// CompressionCodec represents a value compression algorithm.
type CompressionCodec = cachecore.CompressionCodec

const (
	CompressionNone = cachecore.CompressionNone
	CompressionGzip = cachecore.CompressionGzip
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("atmcache: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("atmcache: unsupported compression codec")
	ErrCorruptCompression = errors.New("atmcache: corrupt compressed payload")
)

// encodeValue returns a private copy of value shaped for storage. The caller
// may keep mutating its own slice afterwards.
func encodeValue(codec CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	switch codec {
	case "", CompressionNone:
		return cloneBytes(value), nil
	case CompressionGzip:
		var buf bytes.Buffer
		buf.Write(compressMagic)
		_ = buf.WriteByte('g')
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrUnsupportedCodec
	}
}

// decodeValue always returns a slice the caller owns.
func decodeValue(codec CompressionCodec, in []byte) ([]byte, error) {
	if codec == "" || codec == CompressionNone {
		return cloneBytes(in), nil
	}
	if len(in) < len(compressMagic)+1 || !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return nil, ErrCorruptCompression
	}
	payload := in[len(compressMagic)+1:]
	switch in[len(compressMagic)] {
	case 'g':
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}

func cloneBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	clone := make([]byte, len(value))
	copy(clone, value)
	return clone
}
