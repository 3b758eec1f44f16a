// Package codec encodes cache values to the wire form stored in Redis.
//
// The default codec is JSON. Large payloads are transparently gzipped by the
// compression wrapper, which prefixes the wire form with a marker so decoding
// can detect and reverse it. Round-trip law: Unmarshal(Marshal(v)) == v for
// any JSON-representable v.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts values to and from their stored byte form.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default codec. Stored values stay human-readable in Redis.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: json marshal")
	}
	return data, nil
}

func (JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "codec: json unmarshal")
	}
	return nil
}

// Msgpack trades readability for a denser wire form. Struct fields follow
// msgpack tags.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "codec: msgpack marshal")
	}
	return data, nil
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, "codec: msgpack unmarshal")
	}
	return nil
}

// gzipMarker prefixes compressed payloads. JSON output always begins with a
// JSON token, so the marker cannot collide with an uncompressed payload.
var gzipMarker = []byte("gzip:")

// DefaultCompressionThreshold is the payload size at which the compression
// wrapper starts gzipping, matching the configuration default.
const DefaultCompressionThreshold = 1024

type compressed struct {
	inner     Codec
	threshold int
}

// WithCompression wraps inner so payloads of threshold bytes or more are
// gzipped and tagged with the "gzip:" marker. threshold <= 0 selects
// DefaultCompressionThreshold.
func WithCompression(inner Codec, threshold int) Codec {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return &compressed{inner: inner, threshold: threshold}
}

func (c *compressed) Marshal(v any) ([]byte, error) {
	data, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(data) < c.threshold {
		return data, nil
	}
	var buf bytes.Buffer
	buf.Write(gzipMarker)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "codec: gzip")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "codec: gzip close")
	}
	return buf.Bytes(), nil
}

func (c *compressed) Unmarshal(data []byte, v any) error {
	if bytes.HasPrefix(data, gzipMarker) {
		raw, err := gunzip(data[len(gzipMarker):])
		if err != nil {
			return err
		}
		data = raw
	}
	return c.inner.Unmarshal(data, v)
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "codec: gunzip")
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "codec: gunzip read")
	}
	return raw, nil
}
