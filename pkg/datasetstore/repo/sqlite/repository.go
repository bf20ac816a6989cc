// Package sqlite provides the default catalog: a single SQLite file under
// the engine's metadata directory.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

//go:embed schema.sql
var schemaSQL string

// DBTX abstracts over a connection and a transaction so every catalog
// method works in both contexts.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements datasetstore.Catalog on SQLite.
type Repository struct {
	db   DBTX
	root *sql.DB // nil inside a transaction
}

// Open creates or opens the catalog database at path, applying pragmas and
// the schema. SQLite allows one writer at a time, so the pool is capped at
// a single connection.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	return &Repository{db: db, root: db}, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	if r.root == nil {
		return nil
	}
	return r.root.Close()
}

// WithTx runs fn inside one database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx datasetstore.Catalog) error) error {
	if r.root == nil {
		// Already transactional; nested calls share the outer tx.
		return fn(r)
	}
	sqlTx, err := r.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Repository{db: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// mapConstraintError translates SQLite constraint violations onto the
// engine's sentinel errors.
func mapConstraintError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	if sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}
	msg := sqliteErr.Error()
	switch {
	case strings.Contains(msg, "dataset_versions"):
		return datasetstore.ErrVersionExists
	case strings.Contains(msg, "datasets.name"):
		return datasetstore.ErrDatasetExists
	default:
		return err
	}
}

func (r *Repository) UpsertDataset(ctx context.Context, dataset *datasetstore.Dataset) error {
	query := `
		INSERT INTO datasets (id, name, kind, created_at, updated_at, size, hash, retention_days, is_archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			updated_at = excluded.updated_at,
			size = excluded.size,
			hash = excluded.hash,
			retention_days = excluded.retention_days`

	_, err := r.db.ExecContext(ctx, query,
		dataset.ID.String(), dataset.Name, string(dataset.Kind),
		formatTime(dataset.CreatedAt), formatTime(dataset.UpdatedAt),
		dataset.Size, dataset.Hash, dataset.RetentionDays, boolInt(dataset.Archived))
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (r *Repository) GetDatasetByName(ctx context.Context, name string) (*datasetstore.Dataset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, kind, created_at, updated_at, size, hash, retention_days, is_archived
		FROM datasets WHERE name = ?`, name)
	return scanDataset(row)
}

func (r *Repository) ListDatasets(ctx context.Context, filter datasetstore.DatasetFilter) ([]*datasetstore.Dataset, error) {
	query := `
		SELECT id, name, kind, created_at, updated_at, size, hash, retention_days, is_archived
		FROM datasets WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if !filter.IncludeArchived {
		query += " AND is_archived = 0"
	}
	query += " ORDER BY name ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*datasetstore.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *Repository) MarkArchived(ctx context.Context, datasetID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE datasets SET is_archived = 1 WHERE id = ?`, datasetID.String())
	if err != nil {
		return err
	}
	return requireRow(res, datasetstore.ErrDatasetNotFound)
}

func (r *Repository) DeleteDataset(ctx context.Context, datasetID uuid.UUID) error {
	// Children cascade via foreign keys.
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM datasets WHERE id = ?`, datasetID.String())
	if err != nil {
		return err
	}
	return requireRow(res, datasetstore.ErrDatasetNotFound)
}

func (r *Repository) CreateVersion(ctx context.Context, version *datasetstore.DatasetVersion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dataset_versions (id, dataset_id, version, locator, storage_mode, created_at, size, hash, is_compressed, is_encrypted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID.String(), version.DatasetID.String(), version.Version, version.Locator,
		string(version.StorageMode), formatTime(version.CreatedAt), version.Size, version.Hash,
		boolInt(version.Compressed), boolInt(version.Encrypted))
	if err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, datasetID uuid.UUID, label string) (*datasetstore.DatasetVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, dataset_id, version, locator, storage_mode, created_at, size, hash, is_compressed, is_encrypted
		FROM dataset_versions WHERE dataset_id = ? AND version = ?`,
		datasetID.String(), label)
	return scanVersion(row)
}

func (r *Repository) ListVersions(ctx context.Context, datasetID uuid.UUID) ([]*datasetstore.DatasetVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, dataset_id, version, locator, storage_mode, created_at, size, hash, is_compressed, is_encrypted
		FROM dataset_versions WHERE dataset_id = ?
		ORDER BY created_at DESC, rowid DESC`, datasetID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*datasetstore.DatasetVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *Repository) UpdateVersionLocator(ctx context.Context, versionID uuid.UUID, locator string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dataset_versions SET locator = ? WHERE id = ?`, locator, versionID.String())
	if err != nil {
		return err
	}
	return requireRow(res, datasetstore.ErrVersionNotFound)
}

func (r *Repository) DeleteVersion(ctx context.Context, versionID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM dataset_versions WHERE id = ?`, versionID.String())
	if err != nil {
		return err
	}
	return requireRow(res, datasetstore.ErrVersionNotFound)
}

func (r *Repository) SetMetadata(ctx context.Context, datasetID uuid.UUID, entries map[string]string) error {
	for key, value := range entries {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO dataset_metadata (dataset_id, key, value) VALUES (?, ?, ?)
			ON CONFLICT(dataset_id, key) DO UPDATE SET value = excluded.value`,
			datasetID.String(), key, value)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) GetMetadata(ctx context.Context, datasetID uuid.UUID) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM dataset_metadata WHERE dataset_id = ?`, datasetID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, rows.Err()
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*datasetstore.Dataset, error) {
	var (
		d                    datasetstore.Dataset
		id, kind             string
		createdAt, updatedAt string
		archived             int
	)
	err := row.Scan(&id, &d.Name, &kind, &createdAt, &updatedAt,
		&d.Size, &d.Hash, &d.RetentionDays, &archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, datasetstore.ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed dataset id: %w", err)
	}
	d.Kind = datasetstore.DatasetKind(kind)
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	d.Archived = archived != 0
	return &d, nil
}

func scanVersion(row rowScanner) (*datasetstore.DatasetVersion, error) {
	var (
		v                     datasetstore.DatasetVersion
		id, datasetID         string
		mode, createdAt       string
		compressed, encrypted int
	)
	err := row.Scan(&id, &datasetID, &v.Version, &v.Locator, &mode, &createdAt,
		&v.Size, &v.Hash, &compressed, &encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, datasetstore.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("malformed version id: %w", err)
	}
	if v.DatasetID, err = uuid.Parse(datasetID); err != nil {
		return nil, fmt.Errorf("malformed dataset id: %w", err)
	}
	v.StorageMode = datasetstore.StorageMode(mode)
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	v.Compressed = compressed != 0
	v.Encrypted = encrypted != 0
	return &v, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// timeLayout carries a fixed-width fraction so the text column sorts
// chronologically; RFC3339Nano trims trailing zeros and breaks the
// lexicographic order that ORDER BY created_at relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
