package datasetstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

func TestDefaultStrategy(t *testing.T) {
	st := datasetstore.DefaultStrategy()

	assert.Equal(t, datasetstore.ModeFlatFile, st.StorageMode)
	assert.True(t, st.Compress)
	assert.Equal(t, datasetstore.CompressGzip, st.CompressionMethod)
	assert.False(t, st.Encrypt)
	assert.True(t, st.Versioning)
	assert.Equal(t, datasetstore.SchemeTimestamp, st.VersionScheme)
	assert.Equal(t, 5, st.MaxVersions)
	assert.Equal(t, 180, st.ArchiveAfterDays)
}

func TestKindDefault(t *testing.T) {
	tests := []struct {
		kind     datasetstore.DatasetKind
		mode     datasetstore.StorageMode
		compress bool
	}{
		{datasetstore.KindTabular, datasetstore.ModeTable, true},
		{datasetstore.KindTimeseries, datasetstore.ModeTable, true},
		{datasetstore.KindImage, datasetstore.ModeFlatFile, false},
		{datasetstore.KindStructured, datasetstore.ModeFlatFile, true},
		{datasetstore.KindUnknown, datasetstore.ModeFlatFile, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			st := datasetstore.KindDefault(tt.kind)
			assert.Equal(t, tt.mode, st.StorageMode)
			assert.Equal(t, tt.compress, st.Compress)
		})
	}
}

func TestNormalizeStrategy(t *testing.T) {
	t.Run("fills zero values", func(t *testing.T) {
		st := datasetstore.NormalizeStrategy(datasetstore.Strategy{})
		assert.Equal(t, datasetstore.ModeFlatFile, st.StorageMode)
		assert.Equal(t, datasetstore.CompressGzip, st.CompressionMethod)
		assert.Equal(t, datasetstore.SchemeTimestamp, st.VersionScheme)
		assert.Equal(t, 5, st.MaxVersions)
		assert.Equal(t, 180, st.ArchiveAfterDays)
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		st := datasetstore.NormalizeStrategy(datasetstore.Strategy{
			StorageMode:       datasetstore.ModeTable,
			CompressionMethod: datasetstore.CompressZip,
			VersionScheme:     datasetstore.SchemeSemantic,
			MaxVersions:       2,
			ArchiveAfterDays:  30,
		})
		assert.Equal(t, datasetstore.ModeTable, st.StorageMode)
		assert.Equal(t, datasetstore.CompressZip, st.CompressionMethod)
		assert.Equal(t, datasetstore.SchemeSemantic, st.VersionScheme)
		assert.Equal(t, 2, st.MaxVersions)
		assert.Equal(t, 30, st.ArchiveAfterDays)
	})

	t.Run("explicit false booleans stay off", func(t *testing.T) {
		st := datasetstore.NormalizeStrategy(datasetstore.Strategy{Compress: false, Versioning: false})
		assert.False(t, st.Compress)
		assert.False(t, st.Versioning)
	})
}
