package table_test

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
	"github.com/lakeward/datasetstore/pkg/datasetstore/storage/table"
)

func setupBackend(t *testing.T) (*table.Backend, string) {
	t.Helper()
	base := t.TempDir()
	b, err := table.New(table.Config{BaseDir: base})
	require.NoError(t, err)
	return b, base
}

func writePayload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMode(t *testing.T) {
	b, _ := setupBackend(t)
	assert.Equal(t, datasetstore.ModeTable, b.Mode())
}

func TestWriteCSVLoadsRows(t *testing.T) {
	b, base := setupBackend(t)
	ctx := context.Background()
	src := writePayload(t, "readings.csv",
		"timestamp,value,site\n2024-01-01 00:00:00,1.5,north\n2024-01-01 01:00:00,2.5,south\n")

	res, err := b.Write(ctx, datasetstore.WriteRequest{
		SourcePath:   src,
		Name:         "readings",
		Version:      "20240101000000",
		IndexColumns: []string{"timestamp", "missing_col"},
	})
	require.NoError(t, err)
	assert.Equal(t, "processed/readings/readings_v20240101000000.db", res.Locator)
	assert.False(t, res.Compressed)

	db, err := sql.Open("sqlite3", filepath.Join(base, filepath.FromSlash(res.Locator)))
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "readings_v20240101000000"`).Scan(&count))
	assert.Equal(t, 2, count)

	var site string
	require.NoError(t, db.QueryRow(
		`SELECT site FROM "readings_v20240101000000" WHERE value = '2.5'`).Scan(&site))
	assert.Equal(t, "south", site)

	// Only the column present in the payload got an index.
	var indexes int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&indexes))
	assert.Equal(t, 1, indexes)
}

func TestWriteCompressedDatabase(t *testing.T) {
	b, base := setupBackend(t)
	ctx := context.Background()
	src := writePayload(t, "grid.csv", "a,b\n1,2\n3,4\n")

	res, err := b.Write(ctx, datasetstore.WriteRequest{
		SourcePath: src,
		Name:       "grid",
		Version:    "1",
		Compress:   true,
		Method:     datasetstore.CompressGzip,
	})
	require.NoError(t, err)
	assert.Equal(t, "processed/grid/grid_v1.db.gz", res.Locator)
	assert.True(t, res.Compressed)

	// The uncompressed database file must be gone.
	assert.NoFileExists(t, filepath.Join(base, "processed", "grid", "grid_v1.db"))

	// Read reverses the container; the payload is a usable database file.
	var out bytes.Buffer
	require.NoError(t, b.Read(ctx, res.Locator, &out))

	dbPath := filepath.Join(t.TempDir(), "grid.db")
	require.NoError(t, os.WriteFile(dbPath, out.Bytes(), 0o644))
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "grid_v1"`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestWriteJSONRecords(t *testing.T) {
	b, base := setupBackend(t)
	ctx := context.Background()
	src := writePayload(t, "events.json",
		`[{"id": 1, "kind": "start"}, {"id": 2, "kind": "stop", "extra": "x"}]`)

	res, err := b.Write(ctx, datasetstore.WriteRequest{
		SourcePath: src,
		Name:       "events",
		Version:    "1",
	})
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", filepath.Join(base, filepath.FromSlash(res.Locator)))
	require.NoError(t, err)
	defer db.Close()

	// Columns are the sorted union of record keys.
	rows, err := db.Query(`SELECT extra, id, kind FROM "events_v1" ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct{ extra, id, kind string }
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.extra, &r.id, &r.kind))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)
	assert.Equal(t, row{extra: "", id: "1", kind: "start"}, got[0])
	assert.Equal(t, row{extra: "x", id: "2", kind: "stop"}, got[1])
}

func TestWriteRejectsNonTabularPayload(t *testing.T) {
	b, _ := setupBackend(t)
	src := writePayload(t, "blob.bin", "binary")

	_, err := b.Write(context.Background(), datasetstore.WriteRequest{
		SourcePath: src,
		Name:       "blob",
		Version:    "1",
	})
	require.Error(t, err)

	var serr *datasetstore.StorageError
	assert.ErrorAs(t, err, &serr)
	assert.Equal(t, datasetstore.ModeTable, serr.Mode)
}

func TestWriteRejectsEmptyJSON(t *testing.T) {
	b, _ := setupBackend(t)
	src := writePayload(t, "empty.json", `[]`)

	_, err := b.Write(context.Background(), datasetstore.WriteRequest{
		SourcePath: src,
		Name:       "empty",
		Version:    "1",
	})
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	b, base := setupBackend(t)
	ctx := context.Background()
	src := writePayload(t, "grid.csv", "a,b\n1,2\n")

	res, err := b.Write(ctx, datasetstore.WriteRequest{SourcePath: src, Name: "grid", Version: "1"})
	require.NoError(t, err)

	require.NoError(t, b.Remove(ctx, res.Locator))
	assert.NoDirExists(t, filepath.Join(base, "processed", "grid"))
	assert.DirExists(t, filepath.Join(base, "processed"))
}
