package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/repo/sqlite"
)

func openRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newDataset(name string) *datasetstore.Dataset {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &datasetstore.Dataset{
		ID:            uuid.New(),
		Name:          name,
		Kind:          datasetstore.KindStructured,
		CreatedAt:     now,
		UpdatedAt:     now,
		Size:          10,
		Hash:          "abc",
		RetentionDays: 30,
	}
}

func newVersion(datasetID uuid.UUID, label string, createdAt time.Time) *datasetstore.DatasetVersion {
	return &datasetstore.DatasetVersion{
		ID:          uuid.New(),
		DatasetID:   datasetID,
		Version:     label,
		Locator:     "processed/d/d_v" + label + ".json.gz",
		StorageMode: datasetstore.ModeFlatFile,
		CreatedAt:   createdAt,
		Size:        10,
		Hash:        "abc",
		Compressed:  true,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertDataset(context.Background(), newDataset("kept")))
	require.NoError(t, repo.Close())

	// Re-opening an existing catalog applies the schema without wiping it.
	repo, err = sqlite.Open(path)
	require.NoError(t, err)
	defer repo.Close()
	got, err := repo.GetDatasetByName(context.Background(), "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}

func TestUpsertDataset(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("sensors")
	require.NoError(t, repo.UpsertDataset(ctx, d))

	t.Run("round trips fields", func(t *testing.T) {
		got, err := repo.GetDatasetByName(ctx, "sensors")
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
		assert.Equal(t, d.Kind, got.Kind)
		assert.True(t, got.CreatedAt.Equal(d.CreatedAt))
		assert.Equal(t, 30, got.RetentionDays)
		assert.False(t, got.Archived)
	})

	t.Run("same id updates in place", func(t *testing.T) {
		update := *d
		update.Size = 99
		update.Kind = datasetstore.KindTabular
		require.NoError(t, repo.UpsertDataset(ctx, &update))

		got, err := repo.GetDatasetByName(ctx, "sensors")
		require.NoError(t, err)
		assert.Equal(t, int64(99), got.Size)
		assert.Equal(t, datasetstore.KindTabular, got.Kind)
	})

	t.Run("update never resets the archived flag", func(t *testing.T) {
		require.NoError(t, repo.MarkArchived(ctx, d.ID))
		require.NoError(t, repo.UpsertDataset(ctx, d))

		got, err := repo.GetDatasetByName(ctx, "sensors")
		require.NoError(t, err)
		assert.True(t, got.Archived)
	})

	t.Run("name collision with different id", func(t *testing.T) {
		err := repo.UpsertDataset(ctx, newDataset("sensors"))
		assert.ErrorIs(t, err, datasetstore.ErrDatasetExists)
	})
}

func TestVersionConstraints(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("docs")
	require.NoError(t, repo.UpsertDataset(ctx, d))

	base := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateVersion(ctx, newVersion(d.ID, "20240201120000", base)))

	t.Run("duplicate label maps to sentinel", func(t *testing.T) {
		err := repo.CreateVersion(ctx, newVersion(d.ID, "20240201120000", base))
		assert.ErrorIs(t, err, datasetstore.ErrVersionExists)
	})

	t.Run("same label on another dataset is fine", func(t *testing.T) {
		other := newDataset("other")
		require.NoError(t, repo.UpsertDataset(ctx, other))
		assert.NoError(t, repo.CreateVersion(ctx, newVersion(other.ID, "20240201120000", base)))
	})

	t.Run("deleting the dataset cascades to versions", func(t *testing.T) {
		require.NoError(t, repo.DeleteDataset(ctx, d.ID))
		versions, err := repo.ListVersions(ctx, d.ID)
		require.NoError(t, err)
		assert.Empty(t, versions)
	})
}

func TestListVersionsOrdering(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("ordered")
	require.NoError(t, repo.UpsertDataset(ctx, d))

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateVersion(ctx, newVersion(d.ID, "1", base)))
	require.NoError(t, repo.CreateVersion(ctx, newVersion(d.ID, "2", base.Add(time.Minute))))
	// Same creation time as "2": insertion order breaks the tie.
	require.NoError(t, repo.CreateVersion(ctx, newVersion(d.ID, "2-2", base.Add(time.Minute))))

	versions, err := repo.ListVersions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "2-2", versions[0].Version)
	assert.Equal(t, "2", versions[1].Version)
	assert.Equal(t, "1", versions[2].Version)

	got, err := repo.GetVersion(ctx, d.ID, "2")
	require.NoError(t, err)
	assert.Equal(t, datasetstore.ModeFlatFile, got.StorageMode)
	assert.True(t, got.Compressed)
	assert.False(t, got.Encrypted)

	_, err = repo.GetVersion(ctx, d.ID, "404")
	assert.ErrorIs(t, err, datasetstore.ErrVersionNotFound)
}

func TestListVersionsMixedPrecisionTimestamps(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("mixed")
	require.NoError(t, repo.UpsertDataset(ctx, d))

	// A whole-second timestamp and a later fractional one in the same
	// second; the stored text must still sort chronologically.
	whole := time.Unix(100, 0).UTC()
	fractional := time.Unix(100, int64(500*time.Millisecond)).UTC()
	require.NoError(t, repo.CreateVersion(ctx, newVersion(d.ID, "older", whole)))
	require.NoError(t, repo.CreateVersion(ctx, newVersion(d.ID, "newer", fractional)))

	versions, err := repo.ListVersions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "newer", versions[0].Version)
	assert.Equal(t, "older", versions[1].Version)
	assert.True(t, versions[0].CreatedAt.After(versions[1].CreatedAt))
}

func TestUpdateAndDeleteVersion(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("docs")
	require.NoError(t, repo.UpsertDataset(ctx, d))
	v := newVersion(d.ID, "1", time.Now().UTC())
	require.NoError(t, repo.CreateVersion(ctx, v))

	require.NoError(t, repo.UpdateVersionLocator(ctx, v.ID, "archive/docs/d_v1.json.gz"))
	got, err := repo.GetVersion(ctx, d.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, "archive/docs/d_v1.json.gz", got.Locator)

	assert.ErrorIs(t, repo.UpdateVersionLocator(ctx, uuid.New(), "x"), datasetstore.ErrVersionNotFound)

	require.NoError(t, repo.DeleteVersion(ctx, v.ID))
	assert.ErrorIs(t, repo.DeleteVersion(ctx, v.ID), datasetstore.ErrVersionNotFound)
}

func TestMetadataUpsert(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("tagged")
	require.NoError(t, repo.UpsertDataset(ctx, d))

	require.NoError(t, repo.SetMetadata(ctx, d.ID, map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, repo.SetMetadata(ctx, d.ID, map[string]string{"b": "3", "c": "4"}))

	got, err := repo.GetMetadata(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, got)
}

func TestWithTxRollsBack(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("tx")

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx datasetstore.Catalog) error {
		if err := tx.UpsertDataset(ctx, d); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetDatasetByName(ctx, "tx")
	assert.ErrorIs(t, err, datasetstore.ErrDatasetNotFound)
}

func TestWithTxNestedSharesTransaction(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	d := newDataset("nested")

	err := repo.WithTx(ctx, func(tx datasetstore.Catalog) error {
		if err := tx.UpsertDataset(ctx, d); err != nil {
			return err
		}
		return tx.WithTx(ctx, func(inner datasetstore.Catalog) error {
			return inner.SetMetadata(ctx, d.ID, map[string]string{"k": "v"})
		})
	})
	require.NoError(t, err)

	got, err := repo.GetMetadata(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, got)
}
