package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type project struct {
	ID     string            `json:"id" msgpack:"id"`
	Name   string            `json:"name" msgpack:"name"`
	Tags   []string          `json:"tags" msgpack:"tags"`
	Labels map[string]string `json:"labels" msgpack:"labels"`
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}

	in := project{
		ID:     "p1",
		Name:   "alpha",
		Tags:   []string{"a", "b"},
		Labels: map[string]string{"env": "prod"},
	}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out project
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestJSONRoundTripEmptyCollections(t *testing.T) {
	c := JSON{}

	in := project{Tags: []string{}, Labels: map[string]string{}}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out project
	require.NoError(t, c.Unmarshal(data, &out))
	assert.NotNil(t, out.Tags)
	assert.Empty(t, out.Tags)
	assert.NotNil(t, out.Labels)
	assert.Empty(t, out.Labels)
}

func TestJSONUnmarshalCorrupt(t *testing.T) {
	c := JSON{}
	var out project
	assert.Error(t, c.Unmarshal([]byte("{not json"), &out))
}

func TestMsgpackRoundTrip(t *testing.T) {
	c := Msgpack{}

	in := project{ID: "p2", Name: "beta"}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out project
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestCompressionBelowThreshold(t *testing.T) {
	c := WithCompression(JSON{}, 1024)

	data, err := c.Marshal("small")
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(data, gzipMarker))

	var out string
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, "small", out)
}

func TestCompressionAboveThreshold(t *testing.T) {
	c := WithCompression(JSON{}, 64)

	in := strings.Repeat("projcache ", 100)
	data, err := c.Marshal(in)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, gzipMarker))
	// Repetitive payload should actually shrink.
	assert.Less(t, len(data), len(in))

	var out string
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestCompressionDeepNested(t *testing.T) {
	c := WithCompression(JSON{}, 32)

	in := map[string]any{
		"projects": []any{
			map[string]any{"id": "1", "stats": map[string]any{"files": float64(3)}},
			map[string]any{"id": "2", "stats": map[string]any{"files": float64(0)}},
		},
		"total": float64(2),
	}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestCompressionCorruptPayload(t *testing.T) {
	c := WithCompression(JSON{}, 1)

	var out string
	err := c.Unmarshal(append(append([]byte{}, gzipMarker...), 1, 2, 3, 4), &out)
	assert.Error(t, err)
}

func TestCompressionMarkerOnlyOnWire(t *testing.T) {
	// A string value that itself starts with "gzip:" must survive: JSON wraps
	// it in quotes, so the wire form cannot be mistaken for a compressed blob.
	c := WithCompression(JSON{}, 1024)

	data, err := c.Marshal("gzip:looks-compressed")
	require.NoError(t, err)

	var out string
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, "gzip:looks-compressed", out)
}

func TestCompressionDefaultThreshold(t *testing.T) {
	c := WithCompression(JSON{}, 0)

	small, err := c.Marshal(strings.Repeat("x", 100))
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(small, gzipMarker))

	big, err := c.Marshal(strings.Repeat("x", 4096))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(big, gzipMarker))
}
