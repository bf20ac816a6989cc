package datasetstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labelCatalog stubs the version listing the generator reads.
type labelCatalog struct {
	Catalog
	versions []*DatasetVersion
	err      error
}

func (c *labelCatalog) ListVersions(ctx context.Context, datasetID uuid.UUID) ([]*DatasetVersion, error) {
	return c.versions, c.err
}

func fixedGen() versionGenerator {
	return versionGenerator{clock: func() time.Time {
		return time.Date(2024, 6, 15, 9, 30, 45, 0, time.UTC)
	}}
}

func labels(labels ...string) []*DatasetVersion {
	out := make([]*DatasetVersion, len(labels))
	for i, l := range labels {
		out[i] = &DatasetVersion{Version: l}
	}
	return out
}

func TestVersionGenerator(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	tests := []struct {
		name    string
		scheme  VersionScheme
		catalog *labelCatalog
		nilID   bool
		want    string
	}{
		{
			name:    "timestamp formats the clock",
			scheme:  SchemeTimestamp,
			catalog: &labelCatalog{},
			want:    "20240615093045",
		},
		{
			name:    "sequential starts at one",
			scheme:  SchemeSequential,
			catalog: &labelCatalog{},
			nilID:   true,
			want:    "1",
		},
		{
			name:    "sequential increments the max",
			scheme:  SchemeSequential,
			catalog: &labelCatalog{versions: labels("3", "1", "2")},
			want:    "4",
		},
		{
			name:    "sequential falls back to timestamp on non-numeric labels",
			scheme:  SchemeSequential,
			catalog: &labelCatalog{versions: labels("v1")},
			want:    "20240615093045",
		},
		{
			name:    "sequential falls back to timestamp on catalog failure",
			scheme:  SchemeSequential,
			catalog: &labelCatalog{err: assert.AnError},
			want:    "20240615093045",
		},
		{
			name:    "semantic starts at 0.1.0",
			scheme:  SchemeSemantic,
			catalog: &labelCatalog{},
			nilID:   true,
			want:    "0.1.0",
		},
		{
			name:    "semantic bumps the patch of the newest",
			scheme:  SchemeSemantic,
			catalog: &labelCatalog{versions: labels("1.4.2", "1.4.1")},
			want:    "1.4.3",
		},
		{
			name:    "semantic resets on malformed predecessor",
			scheme:  SchemeSemantic,
			catalog: &labelCatalog{versions: labels("not-semver")},
			want:    "0.1.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := fixedGen()
			datasetID := id
			if tt.nilID {
				datasetID = uuid.Nil
			}
			got, err := gen.next(ctx, tt.catalog, datasetID, tt.scheme)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unknown scheme errors", func(t *testing.T) {
		gen := fixedGen()
		_, err := gen.next(ctx, &labelCatalog{}, id, VersionScheme("lexicographic"))
		assert.Error(t, err)
	})
}
