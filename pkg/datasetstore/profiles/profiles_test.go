package profiles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/profiles"
)

func TestResolveExplicitWinsOverProfile(t *testing.T) {
	r := profiles.Default()

	explicit := &datasetstore.Strategy{
		StorageMode:   datasetstore.ModeFlatFile,
		VersionScheme: datasetstore.SchemeSequential,
		Versioning:    true,
	}
	st := r.Resolve(explicit, "sensor-fleet-1", datasetstore.KindTimeseries)

	assert.Equal(t, datasetstore.ModeFlatFile, st.StorageMode)
	assert.Equal(t, datasetstore.SchemeSequential, st.VersionScheme)
	// Zero counts are normalized from the global defaults.
	assert.Equal(t, 5, st.MaxVersions)
}

func TestResolveProfilePrefixMatch(t *testing.T) {
	r := profiles.Default()

	st := r.Resolve(nil, "sensor-fleet-1", datasetstore.KindUnknown)
	assert.Equal(t, datasetstore.ModeTable, st.StorageMode)
	assert.Equal(t, datasetstore.SchemeTimestamp, st.VersionScheme)
	assert.Equal(t, 10, st.MaxVersions)

	st = r.Resolve(nil, "ml-experiments", datasetstore.KindUnknown)
	assert.Equal(t, datasetstore.SchemeSemantic, st.VersionScheme)
	assert.Equal(t, 20, st.MaxVersions)

	st = r.Resolve(nil, "report-monthly", datasetstore.KindUnknown)
	assert.Equal(t, datasetstore.SchemeSequential, st.VersionScheme)
	assert.Equal(t, 90, st.ArchiveAfterDays)
}

func TestResolveUnmatchedProfileFallsBackToKind(t *testing.T) {
	r := profiles.Default()

	st := r.Resolve(nil, "warehouse-export", datasetstore.KindTabular)
	assert.Equal(t, datasetstore.ModeTable, st.StorageMode)
	assert.True(t, st.Compress)
}

func TestResolveNoProfileUsesKindDefault(t *testing.T) {
	r := profiles.Default()

	st := r.Resolve(nil, "", datasetstore.KindImage)
	assert.Equal(t, datasetstore.ModeFlatFile, st.StorageMode)
	assert.False(t, st.Compress)
}

func TestResolverOrderFirstMatchWins(t *testing.T) {
	r := profiles.NewResolver(
		profiles.Profile{Prefix: "a", Strategy: datasetstore.Strategy{MaxVersions: 1}},
		profiles.Profile{Prefix: "ab", Strategy: datasetstore.Strategy{MaxVersions: 2}},
	)

	st := r.Resolve(nil, "abc", datasetstore.KindUnknown)
	assert.Equal(t, 1, st.MaxVersions)
}
