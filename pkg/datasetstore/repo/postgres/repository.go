// Package postgres provides a catalog on PostgreSQL for deployments that
// share one catalog across hosts. The schema mirrors repo/sqlite.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakeward/datasetstore/pkg/datasetstore"
)

// DBTX allows either a pooled connection or a transaction behind every
// catalog method.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements datasetstore.Catalog using PostgreSQL.
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool // nil inside a transaction
}

// NewWithPool creates a PostgreSQL catalog over a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// WithTx runs fn inside one database transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx datasetstore.Catalog) error) error {
	if r.pool == nil {
		return fn(r)
	}
	pgTx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Repository{db: pgTx}); err != nil {
		pgTx.Rollback(ctx)
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// mapPostgresError translates constraint violations onto the engine's
// sentinel errors.
func mapPostgresError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code != "23505" { // unique_violation
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "dataset_versions"):
		return datasetstore.ErrVersionExists
	case strings.Contains(pgErr.ConstraintName, "datasets"):
		return datasetstore.ErrDatasetExists
	default:
		return err
	}
}

func (r *Repository) UpsertDataset(ctx context.Context, dataset *datasetstore.Dataset) error {
	query := `
		INSERT INTO datasets (id, name, kind, created_at, updated_at, size, hash, retention_days, is_archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			updated_at = EXCLUDED.updated_at,
			size = EXCLUDED.size,
			hash = EXCLUDED.hash,
			retention_days = EXCLUDED.retention_days`

	_, err := r.db.Exec(ctx, query,
		dataset.ID, dataset.Name, string(dataset.Kind),
		dataset.CreatedAt, dataset.UpdatedAt,
		dataset.Size, dataset.Hash, dataset.RetentionDays, dataset.Archived)
	if err != nil {
		return mapPostgresError(err)
	}
	return nil
}

func (r *Repository) GetDatasetByName(ctx context.Context, name string) (*datasetstore.Dataset, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, kind, created_at, updated_at, size, hash, retention_days, is_archived
		FROM datasets WHERE name = $1`, name)
	return scanDataset(row)
}

func (r *Repository) ListDatasets(ctx context.Context, filter datasetstore.DatasetFilter) ([]*datasetstore.Dataset, error) {
	query := `
		SELECT id, name, kind, created_at, updated_at, size, hash, retention_days, is_archived
		FROM datasets WHERE 1=1`
	var args []any
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !filter.IncludeArchived {
		query += " AND is_archived = FALSE"
	}
	query += " ORDER BY name ASC"

	rows, err := r.db.Query(ctx, query, args...)
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
	tag, err := r.db.Exec(ctx,
		`UPDATE datasets SET is_archived = TRUE WHERE id = $1`, datasetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return datasetstore.ErrDatasetNotFound
	}
	return nil
}

func (r *Repository) DeleteDataset(ctx context.Context, datasetID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM datasets WHERE id = $1`, datasetID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return datasetstore.ErrDatasetNotFound
	}
	return nil
}

func (r *Repository) CreateVersion(ctx context.Context, version *datasetstore.DatasetVersion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO dataset_versions (id, dataset_id, version, locator, storage_mode, created_at, size, hash, is_compressed, is_encrypted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		version.ID, version.DatasetID, version.Version, version.Locator, string(version.StorageMode),
		version.CreatedAt, version.Size, version.Hash, version.Compressed, version.Encrypted)
	if err != nil {
		return mapPostgresError(err)
	}
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, datasetID uuid.UUID, label string) (*datasetstore.DatasetVersion, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, dataset_id, version, locator, storage_mode, created_at, size, hash, is_compressed, is_encrypted
		FROM dataset_versions WHERE dataset_id = $1 AND version = $2`,
		datasetID, label)
	return scanVersion(row)
}

func (r *Repository) ListVersions(ctx context.Context, datasetID uuid.UUID) ([]*datasetstore.DatasetVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, dataset_id, version, locator, storage_mode, created_at, size, hash, is_compressed, is_encrypted
		FROM dataset_versions WHERE dataset_id = $1
		ORDER BY created_at DESC, id DESC`, datasetID)
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
	tag, err := r.db.Exec(ctx,
		`UPDATE dataset_versions SET locator = $1 WHERE id = $2`, locator, versionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return datasetstore.ErrVersionNotFound
	}
	return nil
}

func (r *Repository) DeleteVersion(ctx context.Context, versionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM dataset_versions WHERE id = $1`, versionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return datasetstore.ErrVersionNotFound
	}
	return nil
}

func (r *Repository) SetMetadata(ctx context.Context, datasetID uuid.UUID, entries map[string]string) error {
	for key, value := range entries {
		_, err := r.db.Exec(ctx, `
			INSERT INTO dataset_metadata (dataset_id, key, value) VALUES ($1, $2, $3)
			ON CONFLICT (dataset_id, key) DO UPDATE SET value = EXCLUDED.value`,
			datasetID, key, value)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) GetMetadata(ctx context.Context, datasetID uuid.UUID) (map[string]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT key, value FROM dataset_metadata WHERE dataset_id = $1`, datasetID)
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

func scanDataset(row pgx.Row) (*datasetstore.Dataset, error) {
	var (
		d    datasetstore.Dataset
		kind string
	)
	err := row.Scan(&d.ID, &d.Name, &kind, &d.CreatedAt, &d.UpdatedAt,
		&d.Size, &d.Hash, &d.RetentionDays, &d.Archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, datasetstore.ErrDatasetNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Kind = datasetstore.DatasetKind(kind)
	return &d, nil
}

func scanVersion(row pgx.Row) (*datasetstore.DatasetVersion, error) {
	var (
		v    datasetstore.DatasetVersion
		mode string
	)
	err := row.Scan(&v.ID, &v.DatasetID, &v.Version, &v.Locator, &mode, &v.CreatedAt,
		&v.Size, &v.Hash, &v.Compressed, &v.Encrypted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, datasetstore.ErrVersionNotFound
	}
	if err != nil {
		return nil, err
	}
	v.StorageMode = datasetstore.StorageMode(mode)
	return &v, nil
}
