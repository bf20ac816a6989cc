package datasetstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMetadata(t *testing.T) {
	entries, err := encodeMetadata(map[string]any{
		"source": "ingest-a",
		"count":  7,
		"tags":   []string{"hourly", "raw"},
		"extra":  map[string]any{"nested": true},
	})
	require.NoError(t, err)

	assert.Equal(t, "ingest-a", entries["source"])
	assert.Equal(t, "7", entries["count"])
	assert.Equal(t, `["hourly","raw"]`, entries["tags"])
	assert.Equal(t, `{"nested":true}`, entries["extra"])
}

func TestEncodeMetadataEmpty(t *testing.T) {
	entries, err := encodeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestEncodeMetadataUnencodable(t *testing.T) {
	_, err := encodeMetadata(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeMetadata(t *testing.T) {
	out := decodeMetadata(map[string]string{
		"source": "ingest-a",
		"count":  "7",
		"tags":   `["hourly","raw"]`,
		"extra":  `{"nested":true}`,
		"note":   "not json at all",
	})

	// Plain strings survive verbatim even when they happen to parse as
	// JSON scalars.
	assert.Equal(t, float64(7), out["count"])
	assert.Equal(t, "ingest-a", out["source"])
	assert.Equal(t, []any{"hourly", "raw"}, out["tags"])
	assert.Equal(t, map[string]any{"nested": true}, out["extra"])
	assert.Equal(t, "not json at all", out["note"])
}

func TestDecodeMetadataEmpty(t *testing.T) {
	assert.Nil(t, decodeMetadata(nil))
}
