package datasetstore

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrDatasetNotFound indicates an unknown dataset name.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrVersionNotFound indicates an unknown version label.
	ErrVersionNotFound = errors.New("version not found")

	// ErrVersionExists indicates a version label is already recorded for
	// the dataset. Version labels are unique per dataset.
	ErrVersionExists = errors.New("version already exists")

	// ErrDatasetExists indicates a dataset name collision on create.
	ErrDatasetExists = errors.New("dataset already exists")

	// ErrUnsupportedStorageMode indicates a storage mode with no
	// registered backend. This is a configuration error, never a
	// silent fallback.
	ErrUnsupportedStorageMode = errors.New("unsupported storage mode")

	// ErrNoCipher indicates encryption was requested but no cipher is
	// configured. The engine never marks a version encrypted unless a
	// cipher actually ran.
	ErrNoCipher = errors.New("encryption requested but no cipher configured")

	// ErrIntegrity indicates a retrieved payload's recomputed hash does
	// not match the hash recorded at write time.
	ErrIntegrity = errors.New("content hash mismatch")
)

// DatasetError represents a failure of a dataset-level operation.
type DatasetError struct {
	Name string
	Op   string
	Err  error
}

func (e *DatasetError) Error() string {
	return fmt.Sprintf("dataset operation %s failed for %q: %v", e.Op, e.Name, e.Err)
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

// StorageError represents a failure reading, writing or deleting physical
// bytes in a storage backend.
type StorageError struct {
	Mode    StorageMode
	Locator string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s on %s backend: %v", e.Op, e.Locator, e.Mode, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CatalogError represents a transactional failure in the metadata catalog.
// The caller rolls back and compensates by deleting any bytes written in
// the same call.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog operation %s failed: %v", e.Op, e.Err)
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}
